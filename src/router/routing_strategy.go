package router

import (
	"fmt"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

type RoutingStrategy interface {
	Select(intent models.Intent) (*models.ModelRoute, error)
}

// StaticRoutingStrategy maps each intent to a fixed model. The table is
// built once at startup and is read-only afterwards.
type StaticRoutingStrategy struct {
	routes map[models.Intent]models.ModelRoute
}

// NewStaticRoutingStrategy builds the route table from config. Routes that
// leave prices at zero take them from the cost table; routes that declare
// prices register them there. Every intent must have a route.
func NewStaticRoutingStrategy(cfgs []config.RouteConfig, costs *utils.CostTable) (*StaticRoutingStrategy, error) {
	routes := make(map[models.Intent]models.ModelRoute, len(cfgs))

	for _, rc := range cfgs {
		intent, ok := models.ParseIntent(rc.Intent)
		if !ok {
			return nil, fmt.Errorf("route has unknown intent %q", rc.Intent)
		}

		route := models.ModelRoute{
			Intent:               intent,
			ModelID:              rc.Model,
			Provider:             rc.Provider,
			InputCostPerMillion:  rc.InputCostPerMillion,
			OutputCostPerMillion: rc.OutputCostPerMillion,
		}

		if route.InputCostPerMillion == 0 && route.OutputCostPerMillion == 0 {
			price, ok := costs.Price(rc.Model)
			if !ok {
				return nil, fmt.Errorf("route %s: no pricing for model %s", intent, rc.Model)
			}
			route.InputCostPerMillion = price.InputPerMillion
			route.OutputCostPerMillion = price.OutputPerMillion
		} else {
			costs.Register(rc.Model, utils.ModelPrice{
				InputPerMillion:  rc.InputCostPerMillion,
				OutputPerMillion: rc.OutputCostPerMillion,
			})
		}

		routes[intent] = route
	}

	for _, intent := range models.AllIntents {
		if _, ok := routes[intent]; !ok {
			return nil, fmt.Errorf("no route configured for intent %s", intent)
		}
	}

	return &StaticRoutingStrategy{routes: routes}, nil
}

func (s *StaticRoutingStrategy) Select(intent models.Intent) (*models.ModelRoute, error) {
	route, ok := s.routes[intent]
	if !ok {
		return nil, fmt.Errorf("no route for intent %q", intent)
	}
	return &route, nil
}

// Routes returns a copy of the table, for startup logging.
func (s *StaticRoutingStrategy) Routes() []models.ModelRoute {
	out := make([]models.ModelRoute, 0, len(s.routes))
	for _, intent := range models.AllIntents {
		out = append(out, s.routes[intent])
	}
	return out
}
