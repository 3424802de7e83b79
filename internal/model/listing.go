package model

import "time"

// PropertyType は物件の種別を表す。
type PropertyType string

const (
	PropertyApartment  PropertyType = "Apartment"
	PropertyHouse      PropertyType = "House"
	PropertyOffice     PropertyType = "Office"
	PropertyLand       PropertyType = "Land"
	PropertyCommercial PropertyType = "Commercial"
)

// Purpose は物件の掲載目的（売買/賃貸）を表す。
type Purpose string

const (
	PurposeSale Purpose = "For Sale"
	PurposeRent Purpose = "For Rent"
)

// MaxListingImages は1物件あたりの画像上限数。
const MaxListingImages = 6

// Listing は物件情報を表す。
type Listing struct {
	ID          int64
	Title       string
	Slug        string
	Category    PropertyType
	Description string
	Address     string
	Price       float64
	Discount    int
	Bathrooms   int
	Bedrooms    int
	Furnished   bool
	Parking     bool
	Purpose     Purpose
	Images      []ImageRef
	CreatedBy   int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImagePublicIDs は物件画像のPublicID一覧を返す。
func (l *Listing) ImagePublicIDs() []string {
	ids := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		if img.PublicID != "" {
			ids = append(ids, img.PublicID)
		}
	}
	return ids
}

// Category は物件カテゴリ（表示用の分類）を表す。
type Category struct {
	ID        int64
	Name      string
	Slug      string
	Image     ImageRef
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
