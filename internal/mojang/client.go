package mojang

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ely.by/changeskin/internal/version"
)

var userAgent = "ChangeSkin/" + version.Version()

type MojangApi struct {
	http       *http.Client
	uuidUrl    string
	profileUrl string
}

func NewMojangApi(
	http *http.Client,
	uuidUrl string,
	profileUrl string,
) *MojangApi {
	if uuidUrl == "" {
		uuidUrl = "https://api.mojang.com/users/profiles/minecraft/"
	}

	if profileUrl == "" {
		profileUrl = "https://sessionserver.mojang.com/session/minecraft/profile/"
	}

	return &MojangApi{
		http,
		withTrailingSlash(uuidUrl),
		withTrailingSlash(profileUrl),
	}
}

// UsernameToUuid exchanges a single username to the profile info.
// When there is no premium account with such name, nil is returned without an error.
// See https://wiki.vg/Mojang_API#Username_to_UUID
func (c *MojangApi) UsernameToUuid(ctx context.Context, username string) (*ProfileInfo, error) {
	response, err := c.get(ctx, c.uuidUrl+username)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	// Older API versions respond with 204, the newer ones with 404
	if response.StatusCode == http.StatusNoContent || response.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if response.StatusCode != http.StatusOK {
		return nil, errorFromResponse(response)
	}

	var result *ProfileInfo
	body, _ := io.ReadAll(response.Body)
	err = json.Unmarshal(body, &result)
	if err != nil {
		return nil, err
	}

	if result == nil || result.Id == "" {
		return nil, ErrEmptyResponse
	}

	return result, nil
}

// UuidToTextures obtains textures information for provided uuid.
// Pass signed to receive the properties signatures.
// See https://wiki.vg/Mojang_API#UUID_-.3E_Profile_.2B_Skin.2FCape
func (c *MojangApi) UuidToTextures(ctx context.Context, uuid string, signed bool) (*ProfileResponse, error) {
	url := c.profileUrl + strings.ReplaceAll(uuid, "-", "")
	if signed {
		url += "?unsigned=false"
	}

	response, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if response.StatusCode != http.StatusOK {
		return nil, errorFromResponse(response)
	}

	var result *ProfileResponse
	body, _ := io.ReadAll(response.Body)
	err = json.Unmarshal(body, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *MojangApi) get(ctx context.Context, url string) (*http.Response, error) {
	return doGet(ctx, c.http, url)
}

type ProfileResponse struct {
	Id    string      `json:"id"`
	Name  string      `json:"name"`
	Props []*Property `json:"properties"`
}

// TexturesProperty returns the first property holding the textures or nil
func (r *ProfileResponse) TexturesProperty() *Property {
	for _, prop := range r.Props {
		if prop.Name == "textures" {
			return prop
		}
	}

	return nil
}

type Property struct {
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
	Value     string `json:"value"`
}

type ProfileInfo struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	IsLegacy bool   `json:"legacy,omitempty"`
	IsDemo   bool   `json:"demo,omitempty"`
}

func doGet(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent)

	return client.Do(request)
}

func withTrailingSlash(url string) string {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}

	return url
}

func errorFromResponse(response *http.Response) error {
	switch {
	case response.StatusCode == 400:
		type errorResponse struct {
			Error   string `json:"error"`
			Message string `json:"errorMessage"`
		}

		var decodedError errorResponse
		body, _ := io.ReadAll(response.Body)
		_ = json.Unmarshal(body, &decodedError)

		return &BadRequestError{ErrorType: decodedError.Error, Message: decodedError.Message}
	case response.StatusCode == 403:
		return &ForbiddenError{}
	case response.StatusCode == 429:
		return &TooManyRequestsError{}
	case response.StatusCode >= 500:
		return &ServerError{Status: response.StatusCode}
	}

	return fmt.Errorf("unexpected response status code: %d", response.StatusCode)
}
