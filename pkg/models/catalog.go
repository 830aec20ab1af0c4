package models

type Box struct {
	Entity
	Description string `json:"description"`
}

type PackagePrint struct {
	Entity
	Description string `json:"description"`
}

type Brand struct {
	VersionedEntity
	Name string `json:"name"`
	// LogoBase64 is the brand logo encoded as a data URI or bare base64.
	LogoBase64 string `json:"logoBase64,omitempty"`
}

type MuffinShape struct {
	VersionedEntity
	Description string `json:"description"`
}

type Product struct {
	VersionedEntity
	Description   string  `json:"description"`
	Weight        float64 `json:"weight"`
	MuffinShapeID *int64  `json:"muffinShapeId,omitempty"`
}

type ProductItem struct {
	VersionedEntity
	ProductID      *int64 `json:"productId,omitempty"`
	BoxID          *int64 `json:"boxId,omitempty"`
	BrandID        *int64 `json:"brandId,omitempty"`
	PackagePrintID *int64 `json:"packagePrintId,omitempty"`
	UnitsPerBox    int    `json:"unitsPerBox"`
	EAN13          string `json:"ean13,omitempty"`
}
