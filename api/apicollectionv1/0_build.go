package apicollectionv1

import (
	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/service"
)

func BuildV1Collection(v1 *box.R, s service.Servicer) *box.R {

	collections := v1.Resource("/collections").
		WithActions(
			box.Get(listCollections(s)).WithName("listCollections"),
			box.Post(createCollection),
		)

	v1.Resource("/collections/{collectionName}").
		WithActions(
			box.Get(getCollection),
			box.ActionPost(insert).WithName("insert"),
			box.ActionPost(find).WithName("find"),
			box.ActionPost(findByKey).WithName("findByKey"),
			box.ActionPost(patch).WithName("patch"),
			box.ActionPost(remove).WithName("remove"),
			box.ActionPost(incr).WithName("incr"),
			box.ActionPost(setDefaults).WithName("setDefaults"),
			box.ActionPost(dropCollection).WithName("dropCollection"),
		)

	v1.Resource("/collections/{collectionName}/documents/{documentId}").
		WithActions(
			box.Get(getDocument),
		)

	return collections
}
