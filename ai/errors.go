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

package ai

import "errors"

var (
	// ErrOutOfMemory indicates the encoder device ran out of memory for a batch.
	// It is recoverable by submitting less work.
	ErrOutOfMemory = errors.New("encoder out of memory")

	// ErrShapeMismatch indicates an encoder returned a different number of
	// sequences or residues than requested.
	ErrShapeMismatch = errors.New("encoder output shape mismatch")
)
