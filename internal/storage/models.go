// Copyright 2024 KernelFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// KVEntryModel represents the kv_entries table
type KVEntryModel struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Key       string `bun:"key,pk"`
	Value     []byte `bun:"value,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"` // Unix timestamp (milliseconds)
}

// UpdatedTime converts the stored timestamp
func (m *KVEntryModel) UpdatedTime() time.Time {
	return time.UnixMilli(m.UpdatedAt)
}
