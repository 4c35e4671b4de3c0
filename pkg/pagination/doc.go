// Package pagination windows any countable, sliceable sequence into numbered pages.
//
// A Paginator counts its sequence once and then serves pages of PerPage items. A trailing
// remainder of at most Orphans items is folded into the previous page instead of forming a
// tiny last page: 23 items at 10 per page with 3 orphans yields pages of 10 and 13.
package pagination
