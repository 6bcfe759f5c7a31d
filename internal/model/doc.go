// Package model provides the domain types shared by the listflow packages.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import model; model imports nothing internal. This
// keeps the domain types the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Email addresses are compared by their normalized form (see NormalizeEmail)
//   - Enumerations are string-typed so they persist and print as their names
//   - All JSON tags use snake_case
package model
