package db

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"ely.by/changeskin/internal/utils"
)

// The order of the fields matters: it's the same as the upstream uses,
// so values regenerated from the storage match the originally signed ones
type texturesPayload struct {
	Timestamp         int64            `json:"timestamp"`
	ProfileId         string           `json:"profileId"`
	ProfileName       string           `json:"profileName"`
	SignatureRequired bool             `json:"signatureRequired"`
	Textures          texturesSections `json:"textures"`
}

type texturesSections struct {
	Skin *skinSection `json:"SKIN,omitempty"`
	Cape *capeSection `json:"CAPE,omitempty"`
}

type skinSection struct {
	Url      string           `json:"url"`
	Metadata *metadataSection `json:"metadata,omitempty"`
}

type metadataSection struct {
	Model string `json:"model"`
}

type capeSection struct {
	Url string `json:"url"`
}

// DecodeRecord parses the textures value received from the upstream or from another process.
// The passed value is kept as is and returned from the EncodedValue
func DecodeRecord(encodedValue string, signature string) (*Record, error) {
	decoded, err := base64.StdEncoding.DecodeString(encodedValue)
	if err != nil {
		// Some mirrors reencode the value with the url-safe alphabet
		var urlErr error
		decoded, urlErr = base64.URLEncoding.DecodeString(encodedValue)
		if urlErr != nil {
			return nil, fmt.Errorf("unable to decode textures value: %w", err)
		}
	}

	var payload *texturesPayload
	err = json.Unmarshal(decoded, &payload)
	if err != nil {
		return nil, fmt.Errorf("unable to parse textures value: %w", err)
	}

	if payload == nil {
		return nil, fmt.Errorf("the textures value is empty")
	}

	profileId, err := utils.ParseUuid(payload.ProfileId)
	if err != nil {
		return nil, fmt.Errorf("the textures value has invalid profileId: %w", err)
	}

	record := &Record{
		timestamp:    payload.Timestamp,
		profileId:    profileId,
		profileName:  payload.ProfileName,
		encodedValue: encodedValue,
		signature:    signature,
	}

	if s := payload.Textures.Skin; s != nil {
		record.skin = &SkinTexture{
			Url:  s.Url,
			Slim: s.Metadata != nil && s.Metadata.Model == SlimModel,
		}
	}

	if c := payload.Textures.Cape; c != nil {
		record.cape = &CapeTexture{Url: c.Url}
	}

	return record, nil
}

func encodeTextures(r *Record) string {
	payload := &texturesPayload{
		Timestamp:         r.timestamp,
		ProfileId:         utils.MojangId(r.profileId),
		ProfileName:       r.profileName,
		SignatureRequired: true,
	}

	if r.skin != nil {
		payload.Textures.Skin = &skinSection{Url: r.skin.Url}
		if r.skin.Slim {
			payload.Textures.Skin.Metadata = &metadataSection{Model: SlimModel}
		}
	}

	if r.cape != nil {
		payload.Textures.Cape = &capeSection{Url: r.cape.Url}
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	// Texture urls must stay untouched
	encoder.SetEscapeHTML(false)
	// Encoding of the plain struct can't fail
	_ = encoder.Encode(payload)

	return base64.StdEncoding.EncodeToString(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
