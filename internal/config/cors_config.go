package config

import "strings"

type Cors struct {
	Origins []string `yaml:"origins"`
	Methods string   `yaml:"methods"`
	Headers string   `yaml:"headers"`
}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func defaultCors() Cors {
	return Cors{
		Methods: "GET, POST, DELETE, OPTIONS",
		Headers: "Content-Type, Authorization, Mcp-Session-Id, Mcp-Protocol-Version",
	}
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := make(AllowedOrigins, len(c.Origins))
	for _, o := range c.Origins {
		origins[o] = nullValue{}
	}
	return origins
}

func (c Cors) GetAllowedMethods() string {
	return c.Methods
}

func (c Cors) GetAllowedHeaders() string {
	return c.Headers
}
