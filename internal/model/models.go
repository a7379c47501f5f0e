// Package model 提供数据模型定义
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON 通用 JSON 字段类型（jsonb）
type JSON map[string]interface{}

// Value 实现 driver.Valuer
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("unsupported type for JSON")
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, j)
}

// AllModels 所有需要自动迁移的模型
var AllModels = []interface{}{
	&Tenant{},
	&User{},
	&AuthToken{},
	&Document{},
	&Chunk{},
	&QueryRecord{},
}
