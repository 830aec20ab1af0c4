// Package resources declares the descriptor of every managed entity.
package resources

import (
	"strconv"

	"github.com/cesarabad/muffinmanager/pkg/entity"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

const (
	BoxResource          = "box"
	BrandResource        = "brand"
	MuffinShapeResource  = "muffin-shape"
	ProductResource      = "product"
	ProductItemResource  = "product-item"
	PackagePrintResource = "package-print"
	UserResource         = "user"
	GroupResource        = "group"
)

// LogoMaxBytes bounds decoded brand logos.
const LogoMaxBytes = 512 * 1024

var (
	referenceKind   = entity.Text{MaxLength: 50, Pattern: entity.Pattern(`\S(.*\S)?`)}
	descriptionKind = entity.Text{MaxLength: 255, Multiline: true}
	aliasKind       = entity.Text{MaxLength: 50}
	logoKind        = entity.Image{MaxBytes: LogoMaxBytes, MediaTypes: []string{"image/png", "image/jpeg", "image/gif", "image/webp"}}
	ean13Kind       = entity.Text{Pattern: entity.Pattern(`[0-9]{13}`)}
	dniKind         = entity.Text{Pattern: entity.Pattern(`[0-9]{8}[A-Za-z]`)}
)

func referenceField[T any](ptr func(*T) *models.Entity) entity.Field[T] {
	return entity.StringField("reference", "field.reference", true, referenceKind,
		func(item *T) *string { return &ptr(item).Reference })
}

func aliasField[T any](ptr func(*T) *models.VersionedEntity) entity.Field[T] {
	return entity.OptionalStringField("aliasVersion", "field.aliasVersion", aliasKind,
		func(item *T) **string { return &ptr(item).AliasVersion })
}

func entityColumns[T any](ptr func(*T) *models.Entity) []entity.Column[T] {
	return []entity.Column[T]{
		{Name: "lastModifyDate", Label: "field.lastModifyDate", Render: func(item T) string {
			return entity.Format(ptr(&item).LastModifyDate)
		}},
		{Name: "lastModifyUser", Label: "field.lastModifyUser", Render: func(item T) string {
			if u := ptr(&item).LastModifyUser; u != nil {
				if u.Name != "" {
					return u.Name
				}
				return u.Dni
			}
			return ""
		}},
	}
}

func versionColumns[T any](ptr func(*T) *models.VersionedEntity) []entity.Column[T] {
	return []entity.Column[T]{
		{Name: "version", Label: "field.version", Render: func(item T) string {
			return strconv.Itoa(ptr(&item).Version)
		}},
		{Name: "creationDate", Label: "field.creationDate", Render: func(item T) string {
			return entity.Format(ptr(&item).CreationDate)
		}},
		{Name: "endDate", Label: "field.endDate", Render: func(item T) string {
			return entity.Format(ptr(&item).EndDate)
		}},
	}
}

// columns renders every field, then the trailing metadata columns.
func columns[T any](fields []entity.Field[T], extra ...[]entity.Column[T]) []entity.Column[T] {
	cols := make([]entity.Column[T], 0, len(fields)+4)
	for _, f := range fields {
		if _, ok := f.Kind.(entity.Image); ok {
			continue
		}
		cols = append(cols, entity.FieldColumn(f))
	}
	for _, e := range extra {
		cols = append(cols, e...)
	}
	return cols
}

func boxEntity(b *models.Box) *models.Entity                     { return &b.Entity }
func packagePrintEntity(p *models.PackagePrint) *models.Entity   { return &p.Entity }
func brandVersion(b *models.Brand) *models.VersionedEntity       { return &b.VersionedEntity }
func shapeVersion(m *models.MuffinShape) *models.VersionedEntity { return &m.VersionedEntity }
func productVersion(p *models.Product) *models.VersionedEntity   { return &p.VersionedEntity }
func itemVersion(p *models.ProductItem) *models.VersionedEntity  { return &p.VersionedEntity }
func brandEntity(b *models.Brand) *models.Entity                 { return &b.Entity }
func shapeEntity(m *models.MuffinShape) *models.Entity           { return &m.Entity }
func productEntity(p *models.Product) *models.Entity             { return &p.Entity }
func itemEntity(p *models.ProductItem) *models.Entity            { return &p.Entity }

func Box() entity.Descriptor[models.Box] {
	fields := []entity.Field[models.Box]{
		referenceField(boxEntity),
		entity.StringField("description", "field.description", true, descriptionKind,
			func(b *models.Box) *string { return &b.Description }),
	}
	return entity.Descriptor[models.Box]{
		Name:     "entity.box",
		Resource: BoxResource,
		Fields:   fields,
		Columns:  columns(fields, entityColumns(boxEntity)),
		New:      func() models.Box { return models.Box{} },
		View:     models.PermissionGetBaseData,
		Manage:   models.PermissionManageBaseData,
	}
}

func PackagePrint() entity.Descriptor[models.PackagePrint] {
	fields := []entity.Field[models.PackagePrint]{
		referenceField(packagePrintEntity),
		entity.StringField("description", "field.description", true, descriptionKind,
			func(p *models.PackagePrint) *string { return &p.Description }),
	}
	return entity.Descriptor[models.PackagePrint]{
		Name:     "entity.packagePrint",
		Resource: PackagePrintResource,
		Fields:   fields,
		Columns:  columns(fields, entityColumns(packagePrintEntity)),
		New:      func() models.PackagePrint { return models.PackagePrint{} },
		View:     models.PermissionGetBaseData,
		Manage:   models.PermissionManageBaseData,
	}
}

func Brand() entity.Descriptor[models.Brand] {
	fields := []entity.Field[models.Brand]{
		referenceField(brandEntity),
		entity.StringField("name", "field.name", true, entity.Text{MaxLength: 100},
			func(b *models.Brand) *string { return &b.Name }),
		entity.StringField("logo", "field.logo", false, logoKind,
			func(b *models.Brand) *string { return &b.LogoBase64 }),
		aliasField(brandVersion),
	}
	return entity.Descriptor[models.Brand]{
		Name:      "entity.brand",
		Resource:  BrandResource,
		Versioned: true,
		Fields:    fields,
		Columns:   columns(fields, versionColumns(brandVersion), entityColumns(brandEntity)),
		New:       func() models.Brand { return models.Brand{} },
		View:      models.PermissionGetBaseData,
		Manage:    models.PermissionManageBaseData,
	}
}

func MuffinShape() entity.Descriptor[models.MuffinShape] {
	fields := []entity.Field[models.MuffinShape]{
		referenceField(shapeEntity),
		entity.StringField("description", "field.description", true, descriptionKind,
			func(m *models.MuffinShape) *string { return &m.Description }),
		aliasField(shapeVersion),
	}
	return entity.Descriptor[models.MuffinShape]{
		Name:      "entity.muffinShape",
		Resource:  MuffinShapeResource,
		Versioned: true,
		Fields:    fields,
		Columns:   columns(fields, versionColumns(shapeVersion), entityColumns(shapeEntity)),
		New:       func() models.MuffinShape { return models.MuffinShape{} },
		View:      models.PermissionGetBaseData,
		Manage:    models.PermissionManageBaseData,
	}
}

func Product() entity.Descriptor[models.Product] {
	fields := []entity.Field[models.Product]{
		referenceField(productEntity),
		entity.StringField("description", "field.description", true, descriptionKind,
			func(p *models.Product) *string { return &p.Description }),
		entity.FloatField("weight", "field.weight", true, entity.Number{Min: entity.Float(0.001), Max: entity.Float(10000)},
			func(p *models.Product) *float64 { return &p.Weight }),
		entity.ReferenceField("muffinShapeId", "field.muffinShape", true, MuffinShapeResource,
			func(p *models.Product) **int64 { return &p.MuffinShapeID }),
		aliasField(productVersion),
	}
	return entity.Descriptor[models.Product]{
		Name:      "entity.product",
		Resource:  ProductResource,
		Versioned: true,
		Fields:    fields,
		Columns:   columns(fields, versionColumns(productVersion), entityColumns(productEntity)),
		New:       func() models.Product { return models.Product{} },
		View:      models.PermissionGetBaseData,
		Manage:    models.PermissionManageBaseData,
	}
}

func ProductItem() entity.Descriptor[models.ProductItem] {
	fields := []entity.Field[models.ProductItem]{
		referenceField(itemEntity),
		entity.ReferenceField("productId", "field.product", true, ProductResource,
			func(p *models.ProductItem) **int64 { return &p.ProductID }),
		entity.ReferenceField("boxId", "field.box", true, BoxResource,
			func(p *models.ProductItem) **int64 { return &p.BoxID }),
		entity.ReferenceField("brandId", "field.brand", true, BrandResource,
			func(p *models.ProductItem) **int64 { return &p.BrandID }),
		entity.ReferenceField("packagePrintId", "field.packagePrint", false, PackagePrintResource,
			func(p *models.ProductItem) **int64 { return &p.PackagePrintID }),
		entity.IntField("unitsPerBox", "field.unitsPerBox", true, entity.Number{Min: entity.Float(1)},
			func(p *models.ProductItem) *int { return &p.UnitsPerBox }),
		entity.StringField("ean13", "field.ean13", false, ean13Kind,
			func(p *models.ProductItem) *string { return &p.EAN13 }),
		aliasField(itemVersion),
	}
	return entity.Descriptor[models.ProductItem]{
		Name:      "entity.productItem",
		Resource:  ProductItemResource,
		Versioned: true,
		Fields:    fields,
		Columns:   columns(fields, versionColumns(itemVersion), entityColumns(itemEntity)),
		New:       func() models.ProductItem { return models.ProductItem{} },
		View:      models.PermissionGetBaseData,
		Manage:    models.PermissionManageBaseData,
	}
}

func User() entity.Descriptor[models.UserDetailed] {
	fields := []entity.Field[models.UserDetailed]{
		entity.StringField("dni", "field.dni", true, dniKind,
			func(u *models.UserDetailed) *string { return &u.Dni }),
		entity.StringField("name", "field.name", true, entity.Text{MaxLength: 100},
			func(u *models.UserDetailed) *string { return &u.Name }),
		entity.StringField("secondName", "field.secondName", false, entity.Text{MaxLength: 100},
			func(u *models.UserDetailed) *string { return &u.SecondName }),
	}
	cols := columns(fields, []entity.Column[models.UserDetailed]{
		{Name: "groups", Label: "field.groups", Render: func(u models.UserDetailed) string {
			return strconv.Itoa(len(u.Groups))
		}},
		{Name: "disabled", Label: "field.disabled", Render: func(u models.UserDetailed) string {
			return strconv.FormatBool(u.Disabled)
		}},
	})
	return entity.Descriptor[models.UserDetailed]{
		Name:     "entity.user",
		Resource: UserResource,
		Fields:   fields,
		Columns:  cols,
		New:      func() models.UserDetailed { return models.UserDetailed{} },
		View:     models.PermissionManageUsers,
		Manage:   models.PermissionManageUsers,
	}
}

func Group() entity.Descriptor[models.GroupEntity] {
	fields := []entity.Field[models.GroupEntity]{
		entity.StringField("name", "field.name", true, entity.Text{MaxLength: 100},
			func(g *models.GroupEntity) *string { return &g.Name }),
	}
	cols := columns(fields, []entity.Column[models.GroupEntity]{
		{Name: "permissions", Label: "field.permissions", Render: func(g models.GroupEntity) string {
			return strconv.Itoa(len(g.Permissions))
		}},
	})
	return entity.Descriptor[models.GroupEntity]{
		Name:     "entity.group",
		Resource: GroupResource,
		Fields:   fields,
		Columns:  cols,
		New:      func() models.GroupEntity { return models.GroupEntity{} },
		View:     models.PermissionManageGroups,
		Manage:   models.PermissionManageGroups,
	}
}
