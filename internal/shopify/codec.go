package shopify

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
)

// GraphQLError carries the top-level errors of a GraphQL response.
type GraphQLError struct {
	Messages  []string
	Throttled bool
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

func encodeRequest(query, productID string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("query")
	e.Str(query)
	e.FieldStart("variables")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(productID)
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

// decodeProductResponse decodes {"data":{"product":...},"errors":[...]}. A
// null product yields catalog.ErrProductNotFound.
func decodeProductResponse(data []byte) (*catalog.Product, error) {
	var (
		p      *catalog.Product
		gqlErr *GraphQLError
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "data":
			return nullable(d, func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "product" {
						return d.Skip()
					}
					return nullable(d, func(d *jx.Decoder) error {
						p = &catalog.Product{}
						return decodeProduct(d, p)
					})
				})
			})
		case "errors":
			e, err := decodeErrors(d)
			if err != nil {
				return err
			}
			gqlErr = e
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	if gqlErr != nil {
		return nil, gqlErr
	}
	if p == nil {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func decodeErrors(d *jx.Decoder) (*GraphQLError, error) {
	e := &GraphQLError{}
	if err := nullable(d, func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "message":
					msg, err := d.Str()
					if err != nil {
						return err
					}
					e.Messages = append(e.Messages, msg)
					return nil
				case "extensions":
					return nullable(d, func(d *jx.Decoder) error {
						return d.Obj(func(d *jx.Decoder, key string) error {
							if key != "code" {
								return d.Skip()
							}
							code, err := optStr(d)
							if code == "THROTTLED" {
								e.Throttled = true
							}
							return err
						})
					})
				default:
					return d.Skip()
				}
			})
		})
	}); err != nil {
		return nil, errors.Wrap(err, "errors")
	}
	if len(e.Messages) == 0 {
		return nil, nil
	}
	return e, nil
}

func decodeProduct(d *jx.Decoder, p *catalog.Product) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "title":
			p.Title, err = optStr(d)
		case "description":
			p.Description, err = optStr(d)
		case "featuredImage":
			err = nullable(d, func(d *jx.Decoder) error {
				var img catalog.Image
				if err := decodeImage(d, &img); err != nil {
					return err
				}
				p.FeaturedImage = img.URL
				return nil
			})
		case "variants":
			err = nodes(d, func(d *jx.Decoder) error {
				var v catalog.Variant
				if err := decodeVariant(d, &v); err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

func decodeVariant(d *jx.Decoder, v *catalog.Variant) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			var gid string
			if gid, err = d.Str(); err != nil {
				break
			}
			v.ID, err = strconv.ParseInt(catalog.LegacyID(gid), 10, 64)
		case "title":
			v.Title, err = optStr(d)
		case "displayName":
			v.DisplayName, err = optStr(d)
		case "price":
			v.Price, err = decodeMoney(d)
		case "availableForSale":
			v.AvailableForSale, err = d.Bool()
		case "inventoryQuantity":
			err = nullable(d, func(d *jx.Decoder) error {
				n, err := d.Int()
				v.InventoryQuantity = n
				return err
			})
		case "image":
			err = nullable(d, func(d *jx.Decoder) error {
				return decodeImage(d, &v.Image)
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

func decodeImage(d *jx.Decoder, img *catalog.Image) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "url":
			img.URL, err = optStr(d)
		case "altText":
			img.AltText, err = optStr(d)
		case "width":
			img.Width, err = optInt(d)
		case "height":
			img.Height, err = optInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// decodeMoney accepts both the string and the legacy numeric encoding.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, d.Skip()
	}
}

// nodes iterates a {"nodes":[...]} connection.
func nodes(d *jx.Decoder, f func(d *jx.Decoder) error) error {
	return nullable(d, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "nodes" {
				return d.Skip()
			}
			return d.Arr(f)
		})
	})
}

func nullable(d *jx.Decoder, f func(d *jx.Decoder) error) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return f(d)
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func optInt(d *jx.Decoder) (int, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int()
}
