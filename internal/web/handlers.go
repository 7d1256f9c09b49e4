package web

import (
	"encoding/base64"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YuminosukeSato/airq/internal/analysis"
	"github.com/YuminosukeSato/airq/internal/aqi"
	"github.com/YuminosukeSato/airq/internal/dataset"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
)

type field struct {
	Name  string
	Label string
	Value string
}

// predictForm keeps the submitted strings so that a blank field fails
// binding instead of reading as zero.
type predictForm struct {
	PM25 string `form:"pm25" binding:"required"`
	PM10 string `form:"pm10" binding:"required"`
	NO   string `form:"no" binding:"required"`
	NO2  string `form:"no2" binding:"required"`
	NOx  string `form:"nox" binding:"required"`
}

func (p predictForm) fields() []field {
	return []field{
		{"pm25", "PM2.5 (µg/m³)", p.PM25},
		{"pm10", "PM10 (µg/m³)", p.PM10},
		{"no", "NO (µg/m³)", p.NO},
		{"no2", "NO2 (µg/m³)", p.NO2},
		{"nox", "NOx (ppb)", p.NOx},
	}
}

func (p predictForm) features() (aqi.Features, error) {
	raw := []string{p.PM25, p.PM10, p.NO, p.NO2, p.NOx}
	v := make([]float64, len(raw))
	for i, s := range raw {
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return aqi.Features{}, errors.Wrapf(err, "parse %s", dataset.FeatureColumns[i])
		}
		v[i] = x
	}
	return aqi.Features{PM25: v[0], PM10: v[1], NO: v[2], NO2: v[3], NOx: v[4]}, nil
}

func (s *Server) handleHome(c *gin.Context) {
	data := gin.H{"Title": "Air Quality Analysis Portal"}
	if b := s.svc.Current(); b != nil {
		data["Model"] = b
	}
	c.HTML(http.StatusOK, "home.html", data)
}

func (s *Server) handlePredictForm(c *gin.Context) {
	c.HTML(http.StatusOK, "predict.html", gin.H{
		"Title":  "AQI Predictor",
		"Fields": predictForm{}.fields(),
	})
}

func (s *Server) handlePredictSubmit(c *gin.Context) {
	var form predictForm
	data := gin.H{"Title": "AQI Predictor"}

	err := c.ShouldBind(&form)
	data["Fields"] = form.fields()
	var f aqi.Features
	if err == nil {
		f, err = form.features()
	}
	if err != nil {
		data["Error"] = "All five pollutant values must be numbers."
		c.HTML(http.StatusBadRequest, "predict.html", data)
		return
	}

	p, err := s.svc.Predict(f)
	if err != nil {
		status, msg := predictionError(err)
		data["Error"] = msg
		c.HTML(status, "predict.html", data)
		return
	}
	data["Prediction"] = p
	c.HTML(http.StatusOK, "predict.html", data)
}

// predictRequest uses pointers so that a missing field is distinguishable
// from zero.
type predictRequest struct {
	PM25 *float64 `json:"pm25" binding:"required"`
	PM10 *float64 `json:"pm10" binding:"required"`
	NO   *float64 `json:"no" binding:"required"`
	NO2  *float64 `json:"no2" binding:"required"`
	NOx  *float64 `json:"nox" binding:"required"`
}

func (r predictRequest) features() aqi.Features {
	return aqi.Features{PM25: *r.PM25, PM10: *r.PM10, NO: *r.NO, NO2: *r.NO2, NOx: *r.NOx}
}

func (s *Server) handleAPIPredict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: pm25, pm10, no, no2 and nox are required numbers"})
		return
	}

	p, err := s.svc.Predict(req.features())
	if err != nil {
		status, msg := predictionError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, p)
}

func predictionError(err error) (int, string) {
	var invalid *errors.ValidationError
	var shape *errors.InputShapeError
	switch {
	case errors.Is(err, aqi.ErrNotReady):
		return http.StatusServiceUnavailable, "The model is not ready yet."
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.ParamName + " " + invalid.Reason + "."
	case errors.As(err, &shape):
		return http.StatusBadRequest, shape.Error()
	default:
		return http.StatusInternalServerError, "Prediction failed."
	}
}

func (s *Server) handleAPIModel(c *gin.Context) {
	b := s.svc.Current()
	if b == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": aqi.ErrNotReady.Error()})
		return
	}
	c.JSON(http.StatusOK, b.Info())
}

func (s *Server) handleAPIRetrain(c *gin.Context) {
	if s.retrain != nil && !s.retrain.Allow() {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(s.opts.RetrainEvery.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "retrain already requested recently"})
		return
	}
	b, err := s.svc.Retrain(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		var schema *errors.SchemaError
		if errors.Is(err, errors.ErrNoTrainableData) || errors.As(err, &schema) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b.Info())
}

func (s *Server) handleAnalysis(c *gin.Context) {
	data := gin.H{"Title": "Data Analysis", "Source": "Training dataset"}

	table, report, err := s.trainingTable(c)
	if err != nil {
		s.logger.Warn("training data unavailable", "error", err.Error())
		data["Error"] = "The training dataset could not be loaded."
		c.HTML(http.StatusOK, "analysis.html", data)
		return
	}
	summary, err := analysis.Summarize(table)
	if err != nil {
		data["Error"] = "The training dataset has no complete rows."
		c.HTML(http.StatusOK, "analysis.html", data)
		return
	}

	data["Summary"] = summary
	data["Report"] = report
	data["Charts"] = true
	data["ScatterColumns"] = dataset.FeatureColumns
	c.HTML(http.StatusOK, "analysis.html", data)
}

func (s *Server) handleAnalysisUpload(c *gin.Context) {
	data := gin.H{"Title": "Data Analysis"}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		data["Error"] = "Choose a CSV file no larger than the upload limit."
		c.HTML(http.StatusBadRequest, "analysis.html", data)
		return
	}
	f, err := header.Open()
	if err != nil {
		data["Error"] = "The uploaded file could not be read."
		c.HTML(http.StatusBadRequest, "analysis.html", data)
		return
	}
	defer f.Close()

	raw, err := dataset.ReadCSV(f)
	if err != nil {
		data["Error"] = "The uploaded file is not a valid CSV file."
		c.HTML(http.StatusBadRequest, "analysis.html", data)
		return
	}
	raw.Source = header.Filename

	table, report, err := dataset.Clean(raw, s.opts.Sentinel)
	if err != nil {
		var schema *errors.SchemaError
		if errors.As(err, &schema) {
			data["Error"] = schema.Error()
		} else {
			data["Error"] = "The uploaded file could not be cleaned."
		}
		c.HTML(http.StatusBadRequest, "analysis.html", data)
		return
	}
	data["Source"] = header.Filename
	data["Report"] = report

	summary, err := analysis.Summarize(table)
	if err != nil {
		data["Error"] = "No complete rows remain after cleaning."
		c.HTML(http.StatusOK, "analysis.html", data)
		return
	}
	data["Summary"] = summary

	if png, err := analysis.AQIHistogram(table); err == nil {
		data["Histogram"] = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	} else {
		s.logger.Warn("histogram failed", "error", err.Error(), log.SourceKey, header.Filename)
	}
	c.HTML(http.StatusOK, "analysis.html", data)
}

// trainingTable returns the cleaned training table behind the current
// bundle.
func (s *Server) trainingTable(c *gin.Context) (*dataset.Table, dataset.Report, error) {
	var version uuid.UUID
	if b := s.svc.Current(); b != nil {
		version = b.Version
	}
	return s.data.get(c.Request.Context(), version)
}

func (s *Server) loadTraining(c *gin.Context) (*dataset.Table, bool) {
	table, _, err := s.trainingTable(c)
	if err != nil || table.Len() == 0 {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	return table, true
}

func (s *Server) handleHistogramChart(c *gin.Context) {
	table, ok := s.loadTraining(c)
	if !ok {
		return
	}
	s.writePNG(c, func() ([]byte, error) { return analysis.AQIHistogram(table) })
}

func (s *Server) handleScatterChart(c *gin.Context) {
	column := c.DefaultQuery("column", dataset.ColPM25)
	table, ok := s.loadTraining(c)
	if !ok {
		return
	}
	if _, known := table.Column(column); !known {
		c.Status(http.StatusBadRequest)
		return
	}
	s.writePNG(c, func() ([]byte, error) { return analysis.ScatterChart(table, column) })
}

func (s *Server) handleImportanceChart(c *gin.Context) {
	b := s.svc.Current()
	if b == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	s.writePNG(c, func() ([]byte, error) { return analysis.FeatureImportanceChart(b.Importances()) })
}

func (s *Server) writePNG(c *gin.Context, render func() ([]byte, error)) {
	png, err := render()
	if err != nil {
		s.logger.Error("chart rendering failed", err, "route", c.FullPath())
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", png)
}
