// Package validator implements the pre-execution checks applied to every
// submitted snippet.
//
// The checks run in a fixed order: missing code, unsupported language,
// oversized code and finally the denied pattern set. The pattern set is a
// coarse textual filter over the raw source, so a match inside a comment or
// in unreachable code still rejects the request. It is a first pass only;
// the sandbox package is what actually withholds capabilities.
package validator
