// Copyright 2026 The Harvestd Authors
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

// Package pagination implements keyset (cursor) pagination over a
// strictly-decreasing composite sort key (primary timestamp, id tiebreak).
//
// Because the tiebreak is unique and immutable and the primary timestamp is
// assigned once for already-returned rows, a client paging through the whole
// collection sees every row exactly once in a stable total order, even while
// new rows are inserted above the current page.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLimit is the page size used when the caller does not ask for one.
	DefaultLimit = 50
	// MaxLimit caps the page size a caller may request.
	MaxLimit = 100
)

var (
	ErrInvalidCursor = errors.New("pagination: invalid cursor")
	ErrInvalidLimit  = errors.New("pagination: limit must be positive")
)

// Cursor is the decoded position of the last row of a page: continue
// strictly after (Primary, Tiebreak) in descending order.
type Cursor struct {
	Primary  time.Time
	Tiebreak string
}

// Encode serializes the cursor as "<RFC3339Nano>|<tiebreak>" wrapped in
// unpadded base64url so clients treat it as opaque.
func (c Cursor) Encode() string {
	raw := c.Primary.UTC().Format(time.RFC3339Nano) + "|" + c.Tiebreak
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a wire cursor produced by Encode.
func Decode(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	primary, tiebreak, ok := strings.Cut(string(raw), "|")
	if !ok || tiebreak == "" {
		return Cursor{}, fmt.Errorf("%w: missing tiebreak", ErrInvalidCursor)
	}
	ts, err := time.Parse(time.RFC3339Nano, primary)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad primary component", ErrInvalidCursor)
	}
	return Cursor{Primary: ts, Tiebreak: tiebreak}, nil
}

// ClampLimit validates a requested page size. Zero or negative sizes are an
// error; sizes above MaxLimit are clamped.
func ClampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	if limit > MaxLimit {
		return MaxLimit, nil
	}
	return limit, nil
}

// Page is one page of results plus the opaque cursor for the next page.
// NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewPage builds a page from up to limit+1 candidate rows (already ordered
// descending by the composite key). If limit+1 rows were fetched, the
// limit-th row's key becomes the next cursor and the extra row is dropped.
func NewPage[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	rows = rows[:limit]
	return Page[T]{
		Items:      rows,
		NextCursor: key(rows[limit-1]).Encode(),
	}
}
