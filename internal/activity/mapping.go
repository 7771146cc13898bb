package activity

import "strings"

// ActionResource holds action and resource derived from an HTTP method and chi route pattern.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for a route (e.g. POST /security/scan-url -> scan_url on security).
// Resource is the first path segment. POST uses the last literal segment as the verb; GET, PUT and DELETE
// prefix it with get, update and delete. Single-segment routes map the method to list, create, update or delete.
func ParseRoute(method, pattern string) ActionResource {
	var segs []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s == "" || strings.HasPrefix(s, "{") {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := segs[0]
	method = strings.ToUpper(method)
	if len(segs) == 1 {
		return ActionResource{Action: methodToAction(method), Resource: resource}
	}
	last := strings.ReplaceAll(segs[len(segs)-1], "-", "_")
	switch method {
	case "POST":
		return ActionResource{Action: last, Resource: resource}
	case "GET":
		return ActionResource{Action: "get_" + last, Resource: resource}
	case "PUT", "PATCH":
		return ActionResource{Action: "update_" + last, Resource: resource}
	case "DELETE":
		return ActionResource{Action: "delete_" + last, Resource: resource}
	default:
		return ActionResource{Action: strings.ToLower(method) + "_" + last, Resource: resource}
	}
}

func methodToAction(method string) string {
	switch method {
	case "GET":
		return "list"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
