// tokenstore отвечает за долговременное хранение пары токенов между
// запусками процесса. Это зеркало Session.tokens и ничего больше:
// без сети, без валидации содержимого токенов.
//
// Контракт устойчивости: повреждённое или нечитаемое содержимое хранилища
// трактуется как «токенов нет» и никогда не приводит к ошибке чтения.
package tokenstore

import (
	"context"

	"github.com/Alixandros/edugrader-client/internal/models"
)

// Store — долговременное хранилище текущей пары токенов.
//
// Load возвращает сохранённую пару и признак её наличия. Частично
// сохранённая пара (нет одного из токенов) считается отсутствующей.
// Save и Clear возвращают ошибку только при сбое самого носителя.
type Store interface {
	Load(ctx context.Context) (models.TokenPair, bool)
	Save(ctx context.Context, pair models.TokenPair) error
	Clear(ctx context.Context) error
}
