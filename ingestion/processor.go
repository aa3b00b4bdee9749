// Copyright 2025 Poiesic Systems
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

package ingestion

import (
	"context"

	"github.com/poiesic/protrieve/core"
)

// processor is an internal interface for processing flat-file documents.
type processor interface {
	// process handles one batch of documents. Batches may run concurrently.
	process(ctx context.Context, files []core.FlatFile) error

	// checkpoint records that every document up to lastID was processed.
	checkpoint(ctx context.Context, lastID int64) error
}
