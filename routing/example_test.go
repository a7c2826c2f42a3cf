package routing_test

import (
	"fmt"
	"log"
	"os"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/routecache"
	"github.com/zalando/scriptroute/routing"
)

func Example() {
	root, err := os.MkdirTemp("", "routes")
	if err != nil {
		log.Fatal(err)
	}

	defer os.RemoveAll(root)

	// create a cache:
	c, err := routecache.New(routecache.Options{Root: root})
	if err != nil {
		log.Fatal(err)
	}

	// create a router:
	r, err := routing.New(routing.Options{Cache: c})
	if err != nil {
		log.Fatal(err)
	}

	defer r.Close()

	// commit the routes:
	if err := r.Reload(dsl.MustParse(`
		#[route("/greet/{name}")]
		fn greet(name) { "hi " + name }
	`)); err != nil {
		log.Fatal(err)
	}

	// resolve a request:
	res, err := r.Lookup("/greet/Sam")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.Source)
	fmt.Println(res.Args)

	// Output:
	// fn greet(name){"hi " + name}
	// [Sam]
}
