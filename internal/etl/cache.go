package etl

import (
	"encoding/json"

	"github.com/BartekS5/taprun/pkg/models"
	"github.com/BartekS5/taprun/pkg/utils"
)

// FileCache treats an existing properties file as the result of a previous
// discovery.
type FileCache struct {
	Path string
}

func (f *FileCache) Lookup() (string, bool) {
	return f.Path, utils.FileExists(f.Path)
}

func (f *FileCache) Save(c *models.Catalog) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')
	if err := utils.WriteFileAtomic(f.Path, data, 0o644); err != nil {
		return "", err
	}
	return f.Path, nil
}
