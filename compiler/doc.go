/*

Lowering pipeline

Statement Tree (stmt) ->
	lower ->
Block Graph (ir) ->
	format ->
Block Listing

The engine turns structured statements into linear blocks with explicit
branches. Scope cleanups, labels and exception dispatch are resolved here,
the downstream code generator only sees plain control transfers.

*/
package compiler
