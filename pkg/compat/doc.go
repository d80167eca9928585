// Package compat implements the compatibility resolver: a registry of
// symmetric rules checked pairwise over a set of component instances.
//
// Rules are grouped into categories that always run in the same order,
// cheapest first:
//
//   - voltage: voltage-class compatibility of every pair
//   - address: bus-address uniqueness
//   - exclusive: double claims on exclusive units, conflict tags
//   - protocol: capability and address requirements, catalog pair rules
//
// Violations are data. Callers decide what to do with them; the allocator
// treats error-severity violations naming the instance it is placing as
// blocking. The concrete rules live in the rules subpackage.
package compat
