// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"sort"

	"github.com/pkg/errors"
)

// Registry holds the tests a host can discover and run.
type Registry struct {
	insts []*instance
	byUID map[string]*instance
	// errs are registration errors. They are reported as error nodes on
	// discovery.
	errs []*registrationError
}

type registrationError struct {
	name string
	err  error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUID: make(map[string]*instance)}
}

// AddTest registers t. Errors are returned and also remembered, so that
// discovery reports the broken test instead of silently omitting it.
func (r *Registry) AddTest(t *Test) error {
	if err := r.addTest(t); err != nil {
		r.errs = append(r.errs, &registrationError{name: t.Name, err: err})
		return err
	}
	return nil
}

func (r *Registry) addTest(t *Test) error {
	insts, err := instantiate(t)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if _, ok := r.byUID[inst.uid]; ok {
			return errors.Errorf("test %q already registered", inst.uid)
		}
	}
	for _, inst := range insts {
		r.insts = append(r.insts, inst)
		r.byUID[inst.uid] = inst
	}
	return nil
}

// UIDs returns the UIDs of all registered tests in sorted order.
func (r *Registry) UIDs() []string {
	uids := make([]string, 0, len(r.insts))
	for _, inst := range r.insts {
		uids = append(uids, inst.uid)
	}
	sort.Strings(uids)
	return uids
}

// Errors returns registration errors.
func (r *Registry) Errors() []error {
	errs := make([]error, len(r.errs))
	for i, e := range r.errs {
		errs[i] = e.err
	}
	return errs
}

func (r *Registry) lookup(uid string) (*instance, bool) {
	inst, ok := r.byUID[uid]
	return inst, ok
}

func (r *Registry) sortedInstances() []*instance {
	insts := append([]*instance(nil), r.insts...)
	sort.Slice(insts, func(i, j int) bool { return insts[i].uid < insts[j].uid })
	return insts
}
