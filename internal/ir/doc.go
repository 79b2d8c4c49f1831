// Package ir provides the value types shared by every stage of the
// HistFactory to Stan conversion.
//
// This package contains leaf types only. All other internal packages import
// ir; ir imports nothing internal. This keeps ir the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - Values are a closed set (Real, Int, String, Vector, IntArray, Tuple, Object)
//   - Object iteration is always in sorted key order
//   - Content hashes use canonical encoding with domain separation
//   - Tuples encode as {"1": a, "2": b}, the Stan JSON convention
package ir
