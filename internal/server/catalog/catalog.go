// Package catalog holds the seeded product list. Products are read-only
// at runtime; issuance uses the catalog to resolve a product id to the
// asset path its download tokens unlock.
package catalog

// Product types.
const (
	TypeDigital = "digital"
	TypeService = "service"
)

// Product is one sellable item. FilePath is set only for digital
// products and points at the asset a download token redirects to.
type Product struct {
	ID        string  `json:"id"`
	Slug      string  `json:"slug"`
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	ShortDesc string  `json:"shortDesc"`
	Image     string  `json:"image"`
	FilePath  string  `json:"filePath,omitempty"`
}

// Catalog is an immutable product listing with id and slug lookup.
type Catalog struct {
	products []Product
	byID     map[string]*Product
	bySlug   map[string]*Product
}

// New builds a catalog from a product list.
func New(products []Product) *Catalog {
	c := &Catalog{
		products: products,
		byID:     make(map[string]*Product, len(products)),
		bySlug:   make(map[string]*Product, len(products)),
	}
	for i := range c.products {
		p := &c.products[i]
		c.byID[p.ID] = p
		c.bySlug[p.Slug] = p
	}
	return c
}

// Default returns the seeded storefront catalog.
func Default() *Catalog {
	return New([]Product{
		{
			ID:        "p1",
			Slug:      "minimal-portfolio-template",
			Title:     "Minimal Portfolio Template",
			Type:      TypeDigital,
			Price:     19,
			ShortDesc: "Clean HTML/CSS portfolio starter.",
			Image:     "/window.svg",
			FilePath:  "/assets/min-portfolio.zip",
		},
		{
			ID:        "p2",
			Slug:      "social-media-starter-pack",
			Title:     "Social Media Starter Pack",
			Type:      TypeDigital,
			Price:     9,
			ShortDesc: "Caption cheatsheets + post ideas.",
			Image:     "/file.svg",
			FilePath:  "/assets/smpack.pdf",
		},
		{
			ID:        "p3",
			Slug:      "invoice-quote-kit",
			Title:     "Invoice & Quote Kit",
			Type:      TypeDigital,
			Price:     7,
			ShortDesc: "Excel templates that just work.",
			Image:     "/file.svg",
			FilePath:  "/assets/invoice-kit.xlsx",
		},
		{
			ID:        "s1",
			Slug:      "website-setup-help-1h",
			Title:     "Website Setup Help (1h)",
			Type:      TypeService,
			Price:     25,
			ShortDesc: "One hour of setup + guidance.",
			Image:     "/globe.svg",
		},
		{
			ID:        "s2",
			Slug:      "brand-quick-audit-30m",
			Title:     "Brand Quick Audit (30m)",
			Type:      TypeService,
			Price:     15,
			ShortDesc: "Fast audit, crystal-clear next steps.",
			Image:     "/globe.svg",
		},
		{
			ID:        "p4",
			Slug:      "icons-mini-pack",
			Title:     "Icons Mini Pack (PNG)",
			Type:      TypeDigital,
			Price:     5,
			ShortDesc: "Tiny crisp icons for UI and slides.",
			Image:     "/next.svg",
			FilePath:  "/assets/icons-pack.zip",
		},
	})
}

// Products returns all products in listing order.
func (c *Catalog) Products() []Product {
	return c.products
}

// ByID returns the product with the given id, or nil.
func (c *Catalog) ByID(id string) *Product {
	return c.byID[id]
}

// BySlug returns the product with the given slug, or nil.
func (c *Catalog) BySlug(slug string) *Product {
	return c.bySlug[slug]
}
