package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// decodeLines decodes a JSON lines body.
func decodeLines(body string) []interface{} {
	result := []interface{}{}
	d := json.NewDecoder(strings.NewReader(body))
	for {
		var item interface{}
		err := d.Decode(&item)
		if err == io.EOF {
			return result
		}
		if err != nil {
			panic(err)
		}
		result = append(result, item)
	}
}

func row(id int, payload JSON, counter int) JSON {
	return JSON{
		"id":      id,
		"payload": payload,
		"counter": counter,
	}
}

func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("Create collection", func(a *biff.A) {
		resp := apiRequest("POST", "/collections").
			WithBodyJson(JSON{
				"name": "my-collection",
			}).Do()
		Save(resp, "Create collection", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		expectedBody := JSON{
			"name":     "my-collection",
			"total":    0,
			"defaults": nil,
		}
		biff.AssertEqualJson(resp.BodyJson(), expectedBody)

		a.Alternative("Retrieve collection", func(a *biff.A) {
			resp := apiRequest("GET", "/collections/my-collection").Do()
			Save(resp, "Retrieve collection", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), expectedBody)
		})

		a.Alternative("List collections", func(a *biff.A) {
			resp := apiRequest("GET", "/collections").Do()
			Save(resp, "List collections", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{expectedBody})
		})

		a.Alternative("Create collection twice", func(a *biff.A) {
			resp := apiRequest("POST", "/collections").
				WithBodyJson(JSON{
					"name": "my-collection",
				}).Do()
			Save(resp, "Create collection - already exists", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusConflict)
		})

		a.Alternative("Drop collection", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/my-collection:dropCollection").
				Do()
			Save(resp, "Drop collection", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			a.Alternative("Get dropped collection", func(a *biff.A) {
				resp := apiRequest("GET", "/collections/my-collection").
					Do()
				Save(resp, "Get collection - not found", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})

		a.Alternative("Insert one", func(a *biff.A) {
			myDocument := JSON{
				"name":    "Fulanez",
				"address": "Elm Street 11",
			}
			resp := apiRequest("POST", "/collections/my-collection:insert").
				WithBodyJson(myDocument).Do()
			Save(resp, "Insert one", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusCreated)
			biff.AssertEqualJson(resp.BodyJson(), row(1, myDocument, 0))

			a.Alternative("Find with fullscan", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:find").
					WithBodyJson(JSON{
						"mode":  "fullscan",
						"skip":  0,
						"limit": 1,
						"filter": JSON{
							"name": "Fulanez",
						},
					}).Do()
				Save(resp, "Find - fullscan", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), row(1, myDocument, 0))
			})

			a.Alternative("Get document", func(a *biff.A) {
				resp := apiRequest("GET", "/collections/my-collection/documents/1").Do()
				Save(resp, "Get document", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), row(1, myDocument, 0))
			})

			a.Alternative("Get document - not found", func(a *biff.A) {
				resp := apiRequest("GET", "/collections/my-collection/documents/7").Do()
				Save(resp, "Get document - not found", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})

			a.Alternative("Get document - bad id", func(a *biff.A) {
				resp := apiRequest("GET", "/collections/my-collection/documents/abc").Do()

				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			})

			a.Alternative("Increment counter", func(a *biff.A) {
				apiRequest("POST", "/collections/my-collection:incr").
					WithBodyJson(JSON{"id": 1, "delta": 5}).Do()
				resp := apiRequest("POST", "/collections/my-collection:incr").
					WithBodyJson(JSON{"id": 1, "delta": -2}).Do()
				Save(resp, "Increment counter", `
					Counters are updated in place, concurrent increments never conflict.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), JSON{"id": 1, "counter": 3})

				resp = apiRequest("GET", "/collections/my-collection/documents/1").Do()
				biff.AssertEqualJson(resp.BodyJson(), row(1, myDocument, 3))
			})
		})

		a.Alternative("Insert many", func(a *biff.A) {

			myDocuments := []JSON{
				{"n": "1", "name": "Alfonso"},
				{"n": "2", "name": "Gerardo"},
				{"n": "3", "name": "Alfonso"},
			}

			body := ""
			for _, myDocument := range myDocuments {
				myDocument, _ := json.Marshal(myDocument)
				body += string(myDocument) + "\n"
			}
			resp := apiRequest("POST", "/collections/my-collection:insert").
				WithBodyString(body).Do()
			Save(resp, "Insert many", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusCreated)
			biff.AssertEqual(len(decodeLines(resp.BodyString())), 3)

			a.Alternative("Find - limit 10", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:find").
					WithBodyJson(JSON{"limit": 10}).Do()
				Save(resp, "Find - fullscan with limit 10", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(decodeLines(resp.BodyString()), []JSON{
					row(1, myDocuments[0], 0),
					row(2, myDocuments[1], 0),
					row(3, myDocuments[2], 0),
				})
			})

			a.Alternative("Find - reverse", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:find").
					WithBodyJson(JSON{"limit": 2, "reverse": true}).Do()
				Save(resp, "Find - fullscan reverse order", ``)

				biff.AssertEqualJson(decodeLines(resp.BodyString()), []JSON{
					row(3, myDocuments[2], 0),
					row(2, myDocuments[1], 0),
				})
			})

			a.Alternative("Find - bad mode", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:find").
					WithBodyJson(JSON{"mode": "invented"}).Do()
				Save(resp, "Find - bad mode", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			})

			a.Alternative("Remove by fullscan", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:remove").
					WithBodyJson(JSON{
						"limit": 10,
						"filter": JSON{
							"name": "Alfonso",
						},
					}).Do()
				Save(resp, "Remove - fullscan", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(decodeLines(resp.BodyString()), []JSON{
					row(1, myDocuments[0], 0),
					row(3, myDocuments[2], 0),
				})

				resp = apiRequest("POST", "/collections/my-collection:find").
					WithBodyJson(JSON{"limit": 10}).Do()
				biff.AssertEqualJson(decodeLines(resp.BodyString()), []JSON{
					row(2, myDocuments[1], 0),
				})
			})

			a.Alternative("Remove by id", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:remove").
					WithBodyJson(JSON{"id": 2}).Do()
				Save(resp, "Remove - by id", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), row(2, myDocuments[1], 0))

				resp = apiRequest("POST", "/collections/my-collection:remove").
					WithBodyJson(JSON{"id": 2}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})

			a.Alternative("Patch by fullscan", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:patch").
					WithBodyJson(JSON{
						"limit": 10,
						"filter": JSON{
							"name": "Alfonso",
						},
						"patch": JSON{
							"country": "es",
						},
					}).Do()
				Save(resp, "Patch - by fullscan", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				resp = apiRequest("POST", "/collections/my-collection:find").
					WithBodyJson(JSON{"limit": 10}).Do()
				biff.AssertEqualJson(decodeLines(resp.BodyString()), []JSON{
					row(1, JSON{"n": "1", "name": "Alfonso", "country": "es"}, 0),
					row(2, myDocuments[1], 0),
					row(3, JSON{"n": "3", "name": "Alfonso", "country": "es"}, 0),
				})
			})

			a.Alternative("Patch by id", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:patch").
					WithBodyJson(JSON{
						"id": 3,
						"patch": JSON{
							"name": "Pedro",
							"n":    nil,
						},
					}).Do()
				Save(resp, "Patch - by id", `
					A null value removes the field.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), row(3, JSON{"name": "Pedro"}, 0))
			})
		})

		a.Alternative("Set defaults", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/my-collection:setDefaults").
				WithBodyJson(JSON{"kind": "thing", "tag": "new"}).Do()
			Save(resp, "Set defaults", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"kind": "thing", "tag": "new"})

			a.Alternative("Insert with defaults", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:insert").
					WithBodyJson(JSON{"tag": "mine"}).Do()

				biff.AssertEqualJson(resp.BodyJson(), row(1, JSON{"kind": "thing", "tag": "mine"}, 0))
			})

			a.Alternative("Remove one default", func(a *biff.A) {
				resp := apiRequest("POST", "/collections/my-collection:setDefaults").
					WithBodyJson(JSON{"tag": nil}).Do()

				biff.AssertEqualJson(resp.BodyJson(), JSON{"kind": "thing"})
			})
		})

		a.Alternative("Find with collection not found", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/your-collection:find").
				WithBodyJson(JSON{}).Do()
			Save(resp, "Find - collection not found", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			errorMessage := resp.BodyJson().(JSON)["error"].(JSON)["message"].(string)
			biff.AssertEqual(errorMessage, "collection 'your-collection': collection not found")
		})
	})

	a.Alternative("Create collection with key field", func(a *biff.A) {
		resp := apiRequest("POST", "/collections").
			WithBodyJson(JSON{
				"name":      "users",
				"key_field": "email",
			}).Do()
		Save(resp, "Create collection - with key field", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"name":      "users",
			"total":     0,
			"key_field": "email",
			"defaults":  nil,
		})

		ana := JSON{"email": "ana@example.com", "name": "Ana"}
		apiRequest("POST", "/collections/users:insert").
			WithBodyJson(ana).Do()

		a.Alternative("Find by key", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/users:findByKey").
				WithBodyJson(JSON{"value": "ana@example.com"}).Do()
			Save(resp, "Find by key", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), row(1, ana, 0))
		})

		a.Alternative("Find - key mode", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/users:find").
				WithBodyJson(JSON{"mode": "key", "value": "ana@example.com"}).Do()
			Save(resp, "Find - key mode", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), row(1, ana, 0))
		})

		a.Alternative("Find by key - not found", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/users:findByKey").
				WithBodyJson(JSON{"value": "eve@example.com"}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Insert - key conflict", func(a *biff.A) {
			resp := apiRequest("POST", "/collections/users:insert").
				WithBodyJson(JSON{"email": "ana@example.com"}).Do()
			Save(resp, "Insert - key conflict", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusConflict)
		})
	})

	a.Alternative("Create collection with reserved name", func(a *biff.A) {
		resp := apiRequest("POST", "/collections").
			WithBodyJson(JSON{"name": "_private"}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Insert on not existing collection", func(a *biff.A) {

		myDocument := JSON{
			"id": "my-id",
		}
		resp := apiRequest("POST", "/collections/my-collection:insert").
			WithBodyJson(myDocument).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)

		a.Alternative("List collection", func(a *biff.A) {

			resp := apiRequest("POST", "/collections/my-collection:find").
				WithBodyJson(JSON{}).Do()

			biff.AssertEqual(resp.BodyString(), `{"id":1,"payload":{"id":"my-id"},"counter":0}`+"\n")
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
		})
	})

}
