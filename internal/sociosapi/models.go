// Пакет sociosapi — HTTP-клиент к внешнему справочнику членов клуба.
// models.go — модели ответов справочника.
package sociosapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// Text — строковое поле, которое справочник присылает то строкой,
// то числом. Числа сохраняются текстом без потери разрядов
// (штрихкоды длиннее float64).
type Text string

// UnmarshalJSON принимает строку, число, bool или null.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	case data[0] == '{' || data[0] == '[':
		// составные значения в текстовых полях не ожидаются
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

// String возвращает значение как string.
func (t Text) String() string {
	return string(t)
}

// envelope — общий конверт ответа справочника:
// {"estado":"0","result":...,"msg":"Proceso OK"}.
// Поле estado ненадёжно, успех определяется наличием result.
type envelope struct {
	Estado Text            `json:"estado"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

// Member — запись get_socio.
type Member struct {
	ID           Text `json:"Id"`
	SocioN       Text `json:"socio_n"`
	DNI          Text `json:"dni"`
	Nombre       Text `json:"nombre"`
	Apellido     Text `json:"apellido"`
	Mail         Text `json:"mail"`
	Nacionalidad Text `json:"nacionalidad"`
	Nacimiento   Text `json:"nacimiento"`
	Domicilio    Text `json:"domicilio"`
	Localidad    Text `json:"localidad"`
	Telefono     Text `json:"telefono"`
	Celular      Text `json:"celular"`
	Categoria    Text `json:"categoria"`
	Barcode      Text `json:"barcode"`
	Estado       Text `json:"estado"`
	UpdateTS     Text `json:"update_ts"`
}

// ToModel преобразует ответ справочника в доменную модель.
func (m *Member) ToModel() *model.DirectoryMember {
	return &model.DirectoryMember{
		ID:          m.ID.String(),
		AltID:       m.SocioN.String(),
		NationalID:  m.DNI.String(),
		GivenName:   m.Nombre.String(),
		Surname:     m.Apellido.String(),
		Email:       m.Mail.String(),
		Nationality: m.Nacionalidad.String(),
		BirthDate:   parseTime(m.Nacimiento.String()),
		Address:     m.Domicilio.String(),
		Locality:    m.Localidad.String(),
		Phone:       m.Telefono.String(),
		Mobile:      m.Celular.String(),
		Category:    m.Categoria.String(),
		Barcode:     m.Barcode.String(),
		Status:      m.Estado.String(),
		UpdatedAt:   parseTime(m.UpdateTS.String()),
	}
}

// timeLayouts — форматы дат, встречающиеся в ответах справочника.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// parseTime разбирает дату в одном из известных форматов.
// Возвращает nil для пустых и нераспознанных значений.
func parseTime(s string) *time.Time {
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}
