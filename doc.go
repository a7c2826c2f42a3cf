/*
Package scriptroute provides an HTTP server that serves requests by
functions defined in routing documents, with a runtime update of the
routes.

The routes are defined in a small language, where every block binds a
path template to the body of a function. The routes are stored in a
content addressed cache on disk, and looked up by their path templates.
The functions are executed by an embedded Lua interpreter.

# Quickstart

Create a routing document:

	index { "welcome" }

	404 { text("nothing here", 404) }

	#[route("/greet/{name}")]
	fn greet(name) { "hi " .. name }

	#[route("/blog/{slug}.json")]
	fn blog_json(slug) { json({slug = slug}) }

and start the server:

	scriptroute serve -routes-file routes.sr

Then:

	curl localhost:9090/greet/Sam

# Routing Documents

A document is a sequence of blocks:

- index { ... }: the route of the root path. Requests to / resolve to
/index.

- NNN { ... }: the handler of a status code. The 404 block serves the
requests that no other route matches, the 500 block the requests whose
function failed.

- * { ... }: the catch-all route, used when there is no 404 block.

- fn name(args) { ... }: a function route. Its path is /name, unless a
route attribute sets a path template, e.g. #[route("/greet/{name}")].
The cfg attribute sets options of the route, e.g.
#[cfg(wildcard="true")] makes the route serve every path below its own.

The placeholders of the path templates are bound to the parameters of
the function, in the order of the request path. A placeholder matches a
non-empty part of a single path segment, and can have a literal prefix
and suffix within the segment, e.g. /files/file-{id}.json.

For further details, see the dsl package documentation.

# Route Cache

Every route is stored in a YAML record under the cache root, keyed by its
path template, or by the handler name in case of the status blocks. The
records carry the md5 hash of the pattern, function name and body. A
record is rewritten only when the route changed or when its TTL, by
default three hours, expired. After each update of the routes, the files
not belonging to any current route are deleted.

The in-memory index of the cached routes is replaced atomically on every
update, so lookups never observe a partially updated set of routes.

For further details, see the routecache package documentation.

# Matching Requests

A request path is resolved in the following order:

- the route whose template equals the path, if the template has no
placeholders

- the route of the first path segment, when it is marked as wildcard

- the most specific matching template: fewer placeholders first, then
the longer literal text

- the 404 handler, then the catch-all route

When none of these exists, the server responds with the default status.

For further details, see the routing package documentation.

# Data Sources

The routes are loaded from one or more data clients, and updated at
runtime without a restart. The routesfile package watches files, the
routestring package serves documents passed in as strings. Custom
sources must implement the DataClient interface of the routing package.

# Running scriptroute

scriptroute can be started with the command 'scriptroute serve', or as a
library by calling the Run function of this package. Each option of Run
is available as a command line flag, see the config package, or:

	scriptroute serve -help

The same command can check and print routing documents, and maintain the
route cache:

	scriptroute check routes.sr
	scriptroute cache list --cache-dir .scriptroute

# Logging and Metrics

scriptroute logs failures through logrus, and writes an access log in
Apache combined format. The Prometheus metrics are exposed on the
support listener, at /metrics.

For details, see the logging and metrics packages documentation.
*/
package scriptroute
