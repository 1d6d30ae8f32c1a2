// Package executor runs GraphQL queries by compiling them into expression plans and
// evaluating the plans against a data source and a set of services.
//
// # Overview
//
// A request goes through four steps:
//  1. Bind. The binder resolves the operation against the schema and produces a
//     selection tree: data fields become member accesses, list arguments become
//     Where/OrderBy/Skip/Take operators, and @service fields become service calls.
//  2. Compile. The plan compiler turns the tree into a Plan. A query that touches
//     no service compiles into a single pushdown expression. Otherwise it is split
//     in two: the pushdown pass projects every data field the response and the
//     service arguments need, and the post pass computes the response in memory.
//  3. Pushdown. The Source evaluates the pushdown expression with the query root
//     bound to its data and every constant parameter bound to its value. A SQL
//     source translates it into statements; an in-memory source evaluates it.
//  4. Post. When the plan is two-pass, the executor materializes the pushdown
//     result, binds it to the plan's materialized parameter and evaluates the post
//     expression, dispatching service calls through the ServiceRegistry.
//
// # Errors
//
// Errors from binding (unknown fields, bad arguments, invalid filters) are reported
// with their query locations and no data. Errors from the source or a service fail
// the whole request: the result carries the error and a null data value. There is no
// partial success because a plan evaluates as one expression.
//
// # Events
//
// The executor publishes events.PlanBuilt once a plan is compiled and
// events.SourceQueryStart/Finish around the pushdown. The ServiceRegistry publishes events.ServiceCallStart/Finish
// around every service call.
package executor
