package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/airq/pkg/errors"
)

// SaveModel はモデルをgob形式でファイルに保存する
//
// 使用例:
//
//	err := model.SaveModel(bundle, "airq-model.gob")
func SaveModel(m interface{}, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create model file %s", filename)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close model file %s", filename)
		}
	}()
	return SaveModelToWriter(m, file)
}

// LoadModel はファイルからモデルを読み込む。m はポインタでなければならない。
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open model file %s", filename)
	}
	defer file.Close()
	return LoadModelFromReader(m, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
