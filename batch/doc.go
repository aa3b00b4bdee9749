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

// Package batch turns raw protein sequences into a token-bounded schedule of
// encoder calls.
//
// Sequences are cleaned (ambiguous residue codes become the wildcard X),
// split into chunks no longer than the maximum chunk length, sorted longest
// first to reduce padding, and packed greedily into batches that respect both
// a batch-count limit and a cumulative token budget. A single chunk larger
// than the budget is still emitted as its own batch; shrinking it further is
// the embedding generator's job.
package batch
