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

package storage

import "errors"

var (
	// ErrNotFound is returned by cache lookups for absent keys.
	ErrNotFound = errors.New("record not found")

	// ErrTransactionFailed wraps commit and rollback failures.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed is returned after Close.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery rejects similarity queries that cannot be scored.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps vector, snapshot and checkpoint decoding
	// failures.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData marks an encoded value shorter than its header claims.
	ErrTruncatedData = errors.New("truncated data")

	// ErrUnsupportedDialect indicates a DSN naming an unknown SQL backend.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
)
