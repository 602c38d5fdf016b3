// Package listing models products as they are listed on the marketplace.
//
// A CatalogProduct is the local projection of a core product. Publishing it
// creates a PublishableItem that moves Draft -> InProgress -> Published or
// Failed, and later Published -> Unpublished. Every status change leaves a
// DirtyMark until core has been told about it.
package listing
