// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnumFlag implements flag.Value to map a user-supplied string value to an enum value.
type EnumFlag struct {
	valid  map[string]int
	assign EnumFlagAssignFunc
	def    string
	cur    string
}

// EnumFlagAssignFunc is used by EnumFlag to assign an enum value to a target variable.
type EnumFlagAssignFunc func(val int)

// NewEnumFlag returns an EnumFlag using the supplied map of valid values and
// assignment function. def is assigned immediately and used if the flag is
// not given.
func NewEnumFlag(valid map[string]int, assign EnumFlagAssignFunc, def string) *EnumFlag {
	f := &EnumFlag{valid: valid, assign: assign, def: def}
	if err := f.Set(def); err != nil {
		panic(err)
	}
	return f
}

// Default returns the default value used if the flag is unset.
func (f *EnumFlag) Default() string { return f.def }

// QuotedValues returns a comma-separated list of quoted values the user can supply.
func (f *EnumFlag) QuotedValues() string {
	var qn []string
	for n := range f.valid {
		qn = append(qn, strconv.Quote(n))
	}
	sort.Strings(qn)
	return strings.Join(qn, ", ")
}

func (f *EnumFlag) String() string { return f.cur }

func (f *EnumFlag) Set(v string) error {
	ev, ok := f.valid[v]
	if !ok {
		return fmt.Errorf("must be in %s", f.QuotedValues())
	}
	f.cur = v
	f.assign(ev)
	return nil
}

// ListFlag implements flag.Value to split a user-supplied string into a list.
type ListFlag struct {
	sep    string
	assign ListFlagAssignFunc
	cur    []string
}

// ListFlagAssignFunc is called by ListFlag to assign a list to a target variable.
type ListFlagAssignFunc func(vals []string)

// NewListFlag returns a ListFlag splitting values on sep. def is assigned
// immediately.
func NewListFlag(sep string, assign ListFlagAssignFunc, def []string) *ListFlag {
	f := &ListFlag{sep: sep, assign: assign, cur: def}
	assign(def)
	return f
}

func (f *ListFlag) String() string { return strings.Join(f.cur, f.sep) }

func (f *ListFlag) Set(v string) error {
	vals := strings.Split(v, f.sep)
	if v == "" {
		vals = nil
	}
	f.cur = vals
	f.assign(vals)
	return nil
}

// DurationFlag implements flag.Value for a duration given as a number of
// units, e.g. "30" seconds. Go duration strings such as "1m30s" are also
// accepted.
type DurationFlag struct {
	unit time.Duration
	dst  *time.Duration
}

// NewDurationFlag returns a DurationFlag storing into dst, which is set to def.
func NewDurationFlag(unit time.Duration, dst *time.Duration, def time.Duration) *DurationFlag {
	*dst = def
	return &DurationFlag{unit: unit, dst: dst}
}

func (f *DurationFlag) String() string {
	if f.dst == nil {
		return ""
	}
	return strconv.FormatFloat(float64(*f.dst)/float64(f.unit), 'f', -1, 64)
}

func (f *DurationFlag) Set(v string) error {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if n < 0 {
			return fmt.Errorf("negative duration %q", v)
		}
		*f.dst = time.Duration(n * float64(f.unit))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration %q", v)
	}
	if d < 0 {
		return fmt.Errorf("negative duration %q", v)
	}
	*f.dst = d
	return nil
}
