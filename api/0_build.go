package api

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/api/apicollectionv1"
	"github.com/fulldump/cursordb/service"
)

// Build mounts the v1 API. Requests must carry the api key and secret
// headers when apiKey or apiSecret are set.
func Build(s service.Servicer, version, apiKey, apiSecret string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
	)
	if apiKey != "" || apiSecret != "" {
		v1.WithInterceptors(Authenticate(apiKey, apiSecret))
	}

	apicollectionv1.BuildV1Collection(v1, s).
		WithInterceptors(
			injectServicer(s),
		)

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	return b
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(apicollectionv1.SetServicer(ctx, s))
		}
	}
}
