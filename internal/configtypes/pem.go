package configtypes

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// PEMData is PEM content given either as is, base64 encoded or as a path to
// a file. Sources are tried in this order.
type PEMData string

var pemDataType = reflect.TypeOf(PEMData(""))

// StringToPEMDataHookFunc decodes PEMData from strings.
func StringToPEMDataHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != pemDataType || f.Kind() != reflect.String {
			return data, nil
		}
		return PEMData(data.(string)), nil
	}
}

func isPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

// ReadFileFunc is os.ReadFile, replaced in tests.
type ReadFileFunc func(name string) ([]byte, error)

// Load returns PEM bytes and the name of the source they came from.
func (p PEMData) Load(readFile ReadFileFunc) ([]byte, string, error) {
	value := string(p)
	if isPEM([]byte(value)) {
		return []byte(value), "raw", nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && isPEM(decoded) {
		return decoded, "base64", nil
	}
	if readFile == nil {
		readFile = os.ReadFile
	}
	content, err := readFile(value)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", errors.New("invalid PEM data: not raw PEM, base64 PEM or existing file")
		}
		return nil, "", fmt.Errorf("error reading PEM file: %w", err)
	}
	if !isPEM(content) {
		return nil, "", fmt.Errorf("file %q contains invalid PEM data", value)
	}
	return content, "file", nil
}
