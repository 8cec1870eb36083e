package contracts

import "github.com/julienschmidt/httprouter"

// Handler mounts a component's routes on a router owned by the
// application.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}
