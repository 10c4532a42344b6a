// Package validation checks the identifiers cmdkit accepts from command
// authors and discovery settings.
//
// Command ids and dotted module references share one grammar: segments of
// letters, digits, hyphens and underscores joined by dots.
//
//	if err := validation.ValidateCommandID("rig.mirror_joints"); err != nil {
//	    return err
//	}
//
// All functions in this package are pure and safe for concurrent use.
package validation
