package mojang

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/valyala/fastjson"
)

var parserPool = &fastjson.ParserPool{}

// McApi is a third-party mirror of the usernames endpoint. It has its own requests budget,
// so it's used when Mojang's one is exhausted
type McApi struct {
	http    *http.Client
	uuidUrl string
}

func NewMcApi(http *http.Client, uuidUrl string) *McApi {
	if uuidUrl == "" {
		uuidUrl = "https://us.mc-api.net/v3/uuid/"
	}

	return &McApi{http, withTrailingSlash(uuidUrl)}
}

// UsernameToUuid returns nil without an error when the mirror explicitly reports that there is no such account.
// The mirror responds with {"uuid":"..."}, where uuid may be either in the dashed or in the plain form
func (c *McApi) UsernameToUuid(ctx context.Context, username string) (*ProfileInfo, error) {
	response, err := doGet(ctx, c.http, c.uuidUrl+username)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if response.StatusCode != http.StatusOK {
		return nil, errorFromResponse(response)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	parser := parserPool.Get()
	defer parserPool.Put(parser)
	v, err := parser.ParseBytes(body)
	if err != nil {
		return nil, err
	}

	id := string(v.GetStringBytes("uuid"))
	if id == "" {
		return nil, ErrEmptyResponse
	}

	name := string(v.GetStringBytes("name"))
	if name == "" {
		name = username
	}

	return &ProfileInfo{
		Id:   strings.ReplaceAll(id, "-", ""),
		Name: name,
	}, nil
}

// McApiDe is a textures aggregator, which caches signed textures and doesn't consume Mojang's budget
type McApiDe struct {
	http        *http.Client
	texturesUrl string
}

func NewMcApiDe(http *http.Client, texturesUrl string) *McApiDe {
	if texturesUrl == "" {
		texturesUrl = "https://mcapi.de/api/user/"
	}

	return &McApiDe{http, withTrailingSlash(texturesUrl)}
}

// UuidToTextures converts the aggregator's {"properties":{"raw":[{"value":"...","signature":"..."}]}}
// shape into the same ProfileResponse as returned by Mojang's session server
func (c *McApiDe) UuidToTextures(ctx context.Context, uuid string) (*ProfileResponse, error) {
	uuid = strings.ReplaceAll(uuid, "-", "")
	response, err := doGet(ctx, c.http, c.texturesUrl+uuid)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNoContent || response.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if response.StatusCode != http.StatusOK {
		return nil, errorFromResponse(response)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	parser := parserPool.Get()
	defer parserPool.Put(parser)
	v, err := parser.ParseBytes(body)
	if err != nil {
		return nil, err
	}

	if v.Type() == fastjson.TypeNull {
		return nil, nil
	}

	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("unexpected response type %s", v.Type())
	}

	result := &ProfileResponse{
		Id:   uuid,
		Name: string(v.GetStringBytes("username")),
	}

	for _, raw := range v.GetArray("properties", "raw") {
		value := string(raw.GetStringBytes("value"))
		if value == "" {
			continue
		}

		result.Props = append(result.Props, &Property{
			Name:      "textures",
			Value:     value,
			Signature: string(raw.GetStringBytes("signature")),
		})
	}

	if len(result.Props) == 0 {
		return nil, nil
	}

	return result, nil
}
