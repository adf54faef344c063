package sql

import (
	"encoding/base64"
	"fmt"
	"strings"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/utils"
)

// Most of the textures are hosted by Mojang, so only the hash is stored for them
const texturesUrlPrefix = "http://textures.minecraft.net/texture/"

type skinRow struct {
	SkinID    int64  `gorm:"column:SkinID;primaryKey;autoIncrement"`
	Timestamp int64  `gorm:"column:Timestamp"`
	UUID      string `gorm:"column:UUID"`
	Name      string `gorm:"column:Name"`
	SlimModel bool   `gorm:"column:SlimModel"`
	SkinURL   string `gorm:"column:SkinURL"`
	CapeURL   string `gorm:"column:CapeURL"`
	Signature []byte `gorm:"column:Signature"`
}

func (skinRow) TableName() string {
	return "skinData"
}

type preferenceRow struct {
	UserID     int64    `gorm:"column:UserID;primaryKey;autoIncrement"`
	UUID       string   `gorm:"column:UUID"`
	TargetSkin *int64   `gorm:"column:TargetSkin"`
	KeepSkin   bool     `gorm:"column:KeepSkin"`
	Skin       *skinRow `gorm:"foreignKey:TargetSkin;references:SkinID"`
}

func (preferenceRow) TableName() string {
	return "preferences"
}

func recordToRow(record *db.Record) (*skinRow, error) {
	signature, err := base64.StdEncoding.DecodeString(record.Signature())
	if err != nil {
		return nil, fmt.Errorf("the record has invalid signature: %w", err)
	}

	row := &skinRow{
		Timestamp: record.Timestamp(),
		UUID:      utils.MojangId(record.ProfileId()),
		Name:      record.ProfileName(),
		Signature: signature,
	}

	if skin := record.Skin(); skin != nil {
		row.SkinURL = shortUrl(skin.Url)
		row.SlimModel = skin.Slim
	}

	if cape := record.Cape(); cape != nil {
		row.CapeURL = shortUrl(cape.Url)
	}

	return row, nil
}

func rowToRecord(row *skinRow) (*db.Record, error) {
	profileId, err := utils.ParseUuid(row.UUID)
	if err != nil {
		return nil, fmt.Errorf("the skin row %d has invalid uuid: %w", row.SkinID, err)
	}

	var skin *db.SkinTexture
	if row.SkinURL != "" {
		skin = &db.SkinTexture{Url: fullUrl(row.SkinURL), Slim: row.SlimModel}
	}

	var cape *db.CapeTexture
	if row.CapeURL != "" {
		cape = &db.CapeTexture{Url: fullUrl(row.CapeURL)}
	}

	var signature string
	if len(row.Signature) > 0 {
		signature = base64.StdEncoding.EncodeToString(row.Signature)
	}

	return db.NewRecord(row.SkinID, row.Timestamp, profileId, row.Name, skin, cape, signature), nil
}

func shortUrl(url string) string {
	return strings.TrimPrefix(url, texturesUrlPrefix)
}

func fullUrl(url string) string {
	if strings.Contains(url, "://") {
		return url
	}

	return texturesUrlPrefix + url
}
