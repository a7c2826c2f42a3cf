// Copyright 2015 Zalando SE
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package dsl implements the language describing script routes: which
function body handles which request path.

# Grammar Summary

A routing document is built up from 0 or more top-level blocks. Every block
ends with a body delimited by balanced braces. The body is opaque to this
package, it is handed over to the script executor as it is, apart from
removing the enclosing braces and the common indentation.

A routing document example:

	index {
	    text("welcome")
	}

	// served at /greet/{name}
	#[route("/greet/{name}"), cfg(wildcard="false")]
	fn greet(name) {
	    text("hi " .. name)
	}

	fn health() {
	    text("ok")
	}

	404 {
	    text("not found", 404)
	}

	* {
	    text("catch all")
	}

# Blocks

	index { ... }

The index block handles requests to "/". Its function name is index, and its
path is /index.

	404 { ... }

A status block, tagged with a three digit code. The 404 block is used when no
route matches a request. Other codes are kept as well, e.g. the 500 block can
render failures of the executor.

	* { ... }

The wildcard block is used when no route matches and no 404 block exists.

	#[route("/path/{param}"), cfg(key="value")]
	fn name(param) { ... }

A function route. The route attribute is optional, without it the path is
derived from the name, e.g. fn health() is served at /health. Every {param}
in the path must be declared in the parameter list. A path segment may
contain literal text around the placeholder, e.g. /files/file-{id}.json.
The cfg attribute carries options evaluated by the dispatcher, e.g.
wildcard="true" makes /name/anything served by the route /name.

# Comments

Line comments start with '//' and last until the end of the line. Inside
the bodies, the comments of the script language are left untouched.

# Errors

Parse returns a *ParseError for malformed documents, with the line and the
column where parsing stopped. A failed parse never returns partial results.
*/
package dsl
