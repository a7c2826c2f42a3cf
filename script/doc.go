/*
Package script executes the functions of the looked up routes.

The Executor interface is implemented by Lua, running the function
bodies with gopher-lua. The body of a route is compiled once, as a
function taking the route's parameters:

	#[route("/greet/{name}")]
	fn greet(name) { text("hi " .. name) }

Besides the standard modules, the modules base64, json, jsonpath, url
and http can be loaded with require.
*/
package script
