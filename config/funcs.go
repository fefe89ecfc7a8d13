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
	"os"
	"unicode"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"golang.org/x/mod/semver"
)

const (
	semverLess         byte = '<'
	semverEqual        byte = '='
	semverGreaterEqual byte = '~'
	semverGreater      byte = '>'
)

var semverCompChars = []byte{
	semverLess,
	semverEqual,
	semverGreaterEqual,
	semverGreater,
}

// functions returns the functions available in configuration expressions.
func functions() map[string]function.Function {
	return map[string]function.Function{
		"env":    Env(),
		"semver": Semver(),
		"lower":  stdlib.LowerFunc,
		"upper":  stdlib.UpperFunc,
		"format": stdlib.FormatFunc,
	}
}

// Env returns the value of an environment variable, or an empty string if
// it is not set.
func Env() function.Function {
	return function.New(&function.Spec{
		Description: "Returns the value of an environment variable",
		Params: []function.Parameter{
			{
				Name:        "name",
				Description: "name of the environment variable",
				Type:        cty.String,
			},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(os.Getenv(args[0].AsString())), nil
		},
	})
}

// Semver checks whether a version satisfies a target such as "1.2.3",
// "<1.2.3", "~1.2.3" (greater or equal) or ">1.2.3".
func Semver() function.Function {
	return function.New(&function.Spec{
		Description: "Checks if semver matches target",
		Params: []function.Parameter{
			{
				Name:        "version",
				Description: "semver to check",
				Type:        cty.String,
			},
			{
				Name:        "target",
				Description: "conditional target to check",
				Type:        cty.String,
			},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			ok, err := semverMatch(args[0].AsString(), args[1].AsString())
			if err != nil {
				return cty.False, err
			}
			return cty.BoolVal(ok), nil
		},
	})
}

func semverMatch(ver, target string) (bool, error) {
	if len(target) == 0 {
		return false, fmt.Errorf(`invalid target ""`)
	}
	cond := semverEqual
	if !unicode.IsDigit(rune(target[0])) {
		found := false
		for _, c := range semverCompChars {
			if c == target[0] {
				cond = c
				found = true
				target = target[1:]
				break
			}
		}
		if !found {
			return false, fmt.Errorf("invalid target %q: unknown condition", target)
		}
	}
	ver = "v" + ver
	target = "v" + target
	if !semver.IsValid(ver) {
		return false, fmt.Errorf("invalid version %q", ver)
	}
	if !semver.IsValid(target) {
		return false, fmt.Errorf("invalid target %q", target)
	}
	switch c := semver.Compare(ver, target); {
	case c < 0:
		return cond == semverLess, nil
	case c == 0:
		return cond == semverEqual || cond == semverGreaterEqual, nil
	default:
		return cond == semverGreater || cond == semverGreaterEqual, nil
	}
}
