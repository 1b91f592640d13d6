package lexicon

import (
	"fmt"
	"io"
	"maps"
)

// TaiwanBoosts lists Taiwan-specific vocabulary that the general corpus
// under-represents. Counts are merged via max, never lowering corpus counts.
var TaiwanBoosts = map[string]int64{
	"捷運":    50000,
	"悠遊卡":   30000,
	"健保":    40000,
	"程式碼":   60000,
	"程式":    80000,
	"辨識":    70000,
	"語音辨識":  50000,
	"轉錄":    40000,
	"設定":    60000,
	"預設":    40000,
	"偵測":    40000,
	"存取":    30000,
	"網路":    60000,
	"品質":    40000,
	"伺服器":   50000,
	"連線":    40000,
	"檔案":    60000,
	"資料夾":   40000,
	"應用程式":  50000,
	"視窗":    40000,
	"螢幕":    40000,
	"韌體":    20000,
	"列印":    30000,
	"硬碟":    30000,
	"記憶體":   30000,
	"處理器":   30000,
	"點擊":    30000,
	"游標":    20000,
	"機器學習":  30000,
	"深度學習":  30000,
	"人工智慧":  40000,
	"演算法":   30000,
	"大語言模型": 30000,
	"逗號":    30000,
	"句號":    30000,
	"問號":    20000,
	"驚嘆號":   20000,
	"分號":    15000,
	"冒號":    15000,
	"引號":    15000,
	"括號":    15000,
	"區公所":   25000,
	"北投":    30000,
	"漸凍人":   20000,
	"配送":    30000,
	"運算":    40000,
	"雲端運算":  25000,
	"模擬飛行":  20000,
	"額度":    25000,
	"推送":    25000,
	"日誌":    25000,
	"專案":    40000,
	"單指":    15000,
}

// LoadBoosts returns [TaiwanBoosts] merged with the entries read from extra,
// which uses the word frequency file format. extra may be nil. Entries present
// in both keep the larger count.
func LoadBoosts(extra io.Reader) (map[string]int64, error) {
	out := maps.Clone(TaiwanBoosts)
	if extra == nil {
		return out, nil
	}
	m, err := ReadEntries(extra)
	if err != nil {
		return nil, fmt.Errorf("lexicon: boost file: %w", err)
	}
	for w, n := range m {
		out[w] = max(out[w], n)
	}
	return out, nil
}
