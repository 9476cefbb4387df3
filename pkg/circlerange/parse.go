// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package circlerange

import (
	"fmt"
	"strings"
)

// Parse reads back the text format produced by String: "[]" for empty,
// "{v}" for a singleton, or "[left, right) mask=0xM step=S" otherwise. This
// exists so CLI input and tests can round-trip a range without constructing
// one field-by-field in Go source.
func Parse(text string) (CircleRange, error) {
	text = strings.TrimSpace(text)

	if text == "[]" {
		// An empty range's bit width cannot be recovered from "[]"
		// alone; callers needing a specific width should use Empty
		// directly. Default to 64 bits.
		return Empty(64), nil
	}

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		var v uint64
		if _, err := fmt.Sscanf(text, "{%d}", &v); err != nil {
			return CircleRange{}, fmt.Errorf("circlerange: invalid singleton %q: %w", text, err)
		}

		return Single(64, v), nil
	}

	var (
		left, right, mask, step uint64
	)

	if _, err := fmt.Sscanf(text, "[%d, %d) mask=0x%x step=%d", &left, &right, &mask, &step); err != nil {
		return CircleRange{}, fmt.Errorf("circlerange: invalid range %q: %w", text, err)
	}

	nbits := 0
	for m := mask; m != 0; m >>= 1 {
		nbits++
	}

	return New(left, right, uint(nbits), step), nil
}
