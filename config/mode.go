/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SocketMode is an os.FileMode restricted to the permission bits, parsed
// from and rendered as an octal string ("0660") in YAML configuration.
type SocketMode os.FileMode

// DefaultSocketMode matches what a session bus socket is typically
// created with.
const DefaultSocketMode SocketMode = 0660

func ParseSocketMode(s string) (SocketMode, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("config: invalid socket mode %q: %w", s, err)
	}
	return SocketMode(v), nil
}

func (m SocketMode) FileMode() os.FileMode { return os.FileMode(m) }

func (m SocketMode) String() string { return fmt.Sprintf("0%o", uint32(m)) }

func (m SocketMode) MarshalYAML() (interface{}, error) { return m.String(), nil }

func (m *SocketMode) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseSocketMode(value.Value)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
