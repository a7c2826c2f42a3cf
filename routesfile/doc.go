/*
Package routesfile implements a DataClient for reading the route
definitions from a file in the route DSL.

Open reads the file once, while Watch rereads it on every poll of the
routing, and reports the changed and the deleted definitions.

(See the DataClient interface in the scriptroute/routing package and the
route DSL in the scriptroute/dsl package.)
*/
package routesfile
