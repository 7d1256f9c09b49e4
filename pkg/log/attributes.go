package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "RandomForestRegressor", "StandardScaler"
	ModelNameKey = "model.name"

	// ModelVersionKey identifies one trained bundle.
	ModelVersionKey = "model.version"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "clean", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	DroppedKey  = "data.dropped"
	SourceKey   = "data.source"
)

// Performance and results.
const (
	DurationMsKey = "perf.duration_ms"
	R2ScoreKey    = "metrics.r2_score"
	PredictionKey = "preds.value"
	BandKey       = "preds.band"
)

// Errors.
const (
	ErrorCodeKey  = "error.code"
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
	NJobsKey       = "config.n_jobs"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationClean   = "clean"

	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorNoTrainableData   = "NO_TRAINABLE_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorNumerical         = "NUMERICAL_INSTABILITY"
	ErrorInternal          = "INTERNAL"
)
