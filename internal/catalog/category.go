package catalog

import "strings"

// Category is a coarse retail department used to group master products.
type Category string

const (
	CategoryProduce      Category = "produce"
	CategoryBeverages    Category = "beverages"
	CategoryGrocery      Category = "grocery"
	CategoryButcher      Category = "butcher"
	CategoryBakery       Category = "bakery"
	CategoryDairy        Category = "dairy"
	CategoryCleaning     Category = "cleaning"
	CategoryPersonalCare Category = "personal_care"
	CategoryFrozen       Category = "frozen"
	CategoryPet          Category = "pet"
	CategoryOther        Category = "other"
)

var categoryAliases = map[string]Category{
	"produce":        CategoryProduce,
	"hortifruti":     CategoryProduce,
	"hortifrúti":     CategoryProduce,
	"frutas":         CategoryProduce,
	"verduras":       CategoryProduce,
	"legumes":        CategoryProduce,
	"beverages":      CategoryBeverages,
	"bebidas":        CategoryBeverages,
	"grocery":        CategoryGrocery,
	"mercearia":      CategoryGrocery,
	"butcher":        CategoryButcher,
	"acougue":        CategoryButcher,
	"açougue":        CategoryButcher,
	"carnes":         CategoryButcher,
	"bakery":         CategoryBakery,
	"padaria":        CategoryBakery,
	"dairy":          CategoryDairy,
	"laticinios":     CategoryDairy,
	"laticínios":     CategoryDairy,
	"frios":          CategoryDairy,
	"cleaning":       CategoryCleaning,
	"limpeza":        CategoryCleaning,
	"personal_care":  CategoryPersonalCare,
	"personal care":  CategoryPersonalCare,
	"higiene":        CategoryPersonalCare,
	"perfumaria":     CategoryPersonalCare,
	"frozen":         CategoryFrozen,
	"congelados":     CategoryFrozen,
	"pet":            CategoryPet,
	"petshop":        CategoryPet,
	"other":          CategoryOther,
	"outros":         CategoryOther,
}

// ParseCategory maps free-form category labels, including pt-BR department
// names, onto the closed Category set. Unknown labels become CategoryOther.
func ParseCategory(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if cat, ok := categoryAliases[key]; ok {
		return cat
	}
	return CategoryOther
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryProduce, CategoryBeverages, CategoryGrocery, CategoryButcher,
		CategoryBakery, CategoryDairy, CategoryCleaning, CategoryPersonalCare,
		CategoryFrozen, CategoryPet, CategoryOther:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}
