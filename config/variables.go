// Copyright (C) 2021-2025 Chronicle Labs, Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

const (
	// varBlockName is the name of the block that defines variables.
	varBlockName = "variables"

	// varObjectName is the name of the object through which variables are
	// referenced, e.g. var.root.
	varObjectName = "var"
)

// variables evaluates the attributes of all "variables" blocks in body and
// stores them in ctx under the "var" object. Variables may reference each
// other; they are evaluated in dependency order. The remaining body is
// returned.
//
// Example:
//
//	variables {
//	  root = "/srv"
//	  data = "${var.root}/data"
//	}
//
//	assign "data:" {
//	  prefix = "file://${var.data}/"
//	}
func variables(ctx *hcl.EvalContext, body hcl.Body) (hcl.Body, hcl.Diagnostics) {
	content, remain, diags := body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: varBlockName}},
	})
	if diags.HasErrors() {
		return nil, diags
	}
	attrs := make(hcl.Attributes)
	for _, block := range content.Blocks {
		battrs, bdiags := block.Body.JustAttributes()
		if bdiags.HasErrors() {
			return nil, bdiags
		}
		for name, attr := range battrs {
			if prev, ok := attrs[name]; ok {
				return nil, hcl.Diagnostics{{
					Severity: hcl.DiagError,
					Summary:  "Duplicate variable",
					Detail:   fmt.Sprintf("Variable %q was already defined at %s.", name, prev.NameRange),
					Subject:  attr.NameRange.Ptr(),
				}}
			}
			attrs[name] = attr
		}
	}
	order, diags := sortVariables(attrs)
	if diags.HasErrors() {
		return nil, diags
	}
	if ctx.Variables == nil {
		ctx.Variables = make(map[string]cty.Value)
	}
	values := make(map[string]cty.Value, len(order))
	ctx.Variables[varObjectName] = cty.EmptyObjectVal
	for _, attr := range order {
		value, vdiags := attr.Expr.Value(ctx)
		diags = diags.Extend(vdiags)
		if vdiags.HasErrors() {
			return nil, diags
		}
		values[attr.Name] = value
		ctx.Variables[varObjectName] = cty.ObjectVal(maps.Clone(values))
	}
	return remain, diags
}

// sortVariables orders attrs so that every variable comes after the
// variables it references, using a depth-first topological sort.
func sortVariables(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	// Sorted for deterministic diagnostics.
	slices.Sort(names)

	var (
		res  []*hcl.Attribute
		temp = make(map[string]bool)
		mark = make(map[string]bool)
	)
	var visit func(name string) hcl.Diagnostics
	visit = func(name string) hcl.Diagnostics {
		attr, ok := attrs[name]
		if !ok || mark[name] {
			return nil
		}
		if temp[name] {
			return hcl.Diagnostics{{
				Severity:   hcl.DiagError,
				Summary:    "Circular reference detected",
				Detail:     fmt.Sprintf("Variable %q refers to itself through a circular reference.", name),
				Subject:    attr.Expr.Range().Ptr(),
				Expression: attr.Expr,
			}}
		}
		temp[name] = true
		for _, ref := range references(attr.Expr) {
			if diags := visit(ref); diags.HasErrors() {
				return diags
			}
		}
		temp[name] = false
		mark[name] = true
		res = append(res, attr)
		return nil
	}
	for _, name := range names {
		if diags := visit(name); diags.HasErrors() {
			return nil, diags
		}
	}
	return res, nil
}

// references returns the names of the variables referenced by expr.
func references(expr hcl.Expression) []string {
	var names []string
	for _, tr := range expr.Variables() {
		if tr.RootName() != varObjectName || len(tr) < 2 {
			continue
		}
		if attr, ok := tr[1].(hcl.TraverseAttr); ok {
			names = append(names, attr.Name)
		}
	}
	return names
}
