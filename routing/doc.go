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
Package routing resolves request paths to the cached routes, and keeps
the cache and its index in sync with the route definitions.

# Lookup

A request URL is resolved in the following order:

1. The query is dropped and the path is cleaned. The path "/" is the
index route.

2. When a cached route exists whose pattern is the path itself, and the
pattern has no placeholders, it is taken.

3. When the route of the first path segment has the wildcard option
set, e.g. #[cfg(wildcard="true")], it is taken for any path below it.

4. The path is matched against the indexed routes, see below.

5. When nothing matched, the not_found handler is taken if cached, then
the wildcard handler. Otherwise the lookup fails with ErrNoRoute.

# Matching

A pattern matches a path when both have the same number of segments,
literal segments are equal, and placeholder segments match their literal
prefix and suffix, e.g. file-{id}.json matches file-42.json, capturing
42. Placeholders not declared as parameters of the function don't match,
and neither do empty captures.

When multiple patterns match the same path, the one with fewer
placeholders wins, then the one with the longer literal text, then the
first one in lexical order. This makes literal routes win over
overlapping placeholder routes. With many routes, the candidates can be
evaluated concurrently, see Options.ParallelSearchThreshold, with the
same outcome.

The captures are returned in the order of the path segments, and they
are bound positionally to the parameters of the function.

# Data Clients

Route definitions are loaded from clients that implement the DataClient
interface. The router initially loads the complete set of the
definitions from each client, retrying with exponential backoff, merges
them by their key, and commits them: every route is stored in the cache,
the index is reconciled to exactly the new set, and the cache files of
the removed routes are deleted.

During operation, the router regularly polls the data clients for
updates, and commits the merged set again. In case of communication
failure during polling, it reloads the whole set of definitions from the
failing client.

A commit is all or nothing: when storing any of the routes fails, the
index keeps serving the routes of the last successful commit. Readers
never observe a partially updated index.
*/
package routing
