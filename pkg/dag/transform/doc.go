// Package transform provides graph transformations applied to resolved
// package graphs before they are rendered.
//
// # Transitive Reduction
//
// [TransitiveReduction] removes requirement edges implied by other paths.
// If maya requires python and pyside, and pyside requires python, the
// maya→python edge is dropped from the picture while the resolution itself
// is unchanged.
//
// # Layer Assignment
//
// [AssignLayers] computes the row of each package from its depth below the
// roots, so renderers can rank packages top to bottom.
//
// # Usage
//
//	transform.Normalize(g) // reduce, then assign layers
package transform
